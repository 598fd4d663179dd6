package extract

import "github.com/rahul/wayfarer/internal/browser"

// Script names, used by the drivers for error messages and by test fakes
// to dispatch canned page measurements.
const (
	ScriptSelectorText    = "extract.selectorText"
	ScriptParagraphs      = "extract.paragraphs"
	ScriptDensityBlocks   = "extract.densityBlocks"
	ScriptBlockTexts      = "extract.blockTexts"
	ScriptBodyText        = "extract.bodyText"
	ScriptCandidates      = "extract.candidates"
	ScriptCandidateText   = "extract.candidateText"
	ScriptImages          = "extract.images"
	ScriptContainerImages = "extract.containerImages"
)

// The scripts below only measure the page. Thresholds and scoring live in Go.

const selectorTextJS = `(sel) => {
  const clean = (el) => (el.innerText || el.textContent || '').trim().replace(/\s+/g, ' ');
  let el = null;
  try { el = document.querySelector(sel); } catch (e) { el = null; }
  if (el) {
    const t = clean(el);
    if (t.length > 0) return { found: true, text: t, matched: sel };
  }
  const base = sel.replace(/^[#.]/, '');
  const variants = ['[class*="' + base + '"]', '[id*="' + base + '"]', '[data-testid*="' + base + '"]'];
  for (const v of variants) {
    let els = [];
    try { els = Array.from(document.querySelectorAll(v)); } catch (e) { continue; }
    let best = '';
    for (const e of els) {
      const t = clean(e);
      if (t.length > best.length) best = t;
    }
    if (best.length > 0) return { found: true, text: best, matched: v };
  }
  return { found: false, text: '', matched: '' };
}`

const paragraphsJS = `() => Array.from(document.querySelectorAll('p')).map(p => (p.innerText || p.textContent || '').trim())`

const densityBlocksJS = `() => {
  const els = Array.from(document.querySelectorAll('div, section, main, article'));
  window.__wayfarerBlocks = els;
  const out = [];
  els.forEach((el, i) => {
    const n = (el.innerText || '').length;
    if (n > 0) out.push({ index: i, textLength: n, childNodes: el.childNodes.length });
  });
  return out;
}`

const blockTextsJS = `(indices) => {
  const els = window.__wayfarerBlocks || [];
  return indices.map(i => els[i] ? (els[i].innerText || '') : '');
}`

const bodyTextJS = `() => document.body ? (document.body.innerText || document.body.textContent || '') : ''`

const candidatesJS = `(selectors, minLength, minDensity) => {
  const list = [];
  const seen = new Set();
  const add = (el) => { if (el && !seen.has(el)) { seen.add(el); list.push(el); } };
  selectors.forEach(s => { try { add(document.querySelector(s)); } catch (e) {} });
  add(document.body);
  Array.from(document.querySelectorAll('div, section, article, main')).forEach(el => {
    const n = (el.innerText || '').length;
    if (n > minLength && n / (el.childNodes.length || 1) > minDensity) add(el);
  });
  window.__wayfarerCandidates = list;
  const semantic = ['p', 'h1', 'h2', 'h3', 'h4', 'li', 'blockquote'];
  return list.map((el, i) => ({
    index: i,
    tag: el.tagName.toLowerCase(),
    id: el.id || '',
    className: typeof el.className === 'string' ? el.className : '',
    textLength: (el.innerText || '').length,
    childNodes: el.childNodes.length,
    allTags: el.getElementsByTagName('*').length,
    semanticTags: semantic.reduce((n, t) => n + el.getElementsByTagName(t).length, 0),
    isBody: el === document.body
  }));
}`

const candidateTextJS = `(i) => {
  const els = window.__wayfarerCandidates || [];
  return els[i] ? (els[i].innerText || els[i].textContent || '') : '';
}`

const imageInfoJS = `const info = (img) => ({
    src: img.src || img.getAttribute('data-src') || img.getAttribute('data-lazy-src') || '',
    alt: img.alt || '',
    width: img.width || parseInt(img.getAttribute('width') || '0', 10),
    height: img.height || parseInt(img.getAttribute('height') || '0', 10)
  });`

const imagesJS = `(root) => {
  ` + imageInfoJS + `
  let imgs = [];
  try { imgs = Array.from(document.querySelectorAll(root + ' img')); } catch (e) { return []; }
  return imgs.map(info).filter(i => i.src);
}`

const containerImagesJS = `(selectors) => {
  ` + imageInfoJS + `
  return selectors.map(sel => {
    let imgs = [];
    try { imgs = Array.from(document.querySelectorAll(sel + ' img')); } catch (e) { return []; }
    return imgs.map(info).filter(i => i.src);
  });
}`

func script(name, src string, args ...any) browser.Script {
	return browser.Script{Name: name, Source: src, Args: args}
}
