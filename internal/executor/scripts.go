package executor

import "github.com/rahul/wayfarer/internal/browser"

const (
	ScriptInteractive = "executor.interactive"
	ScriptFirstResult = "executor.firstResult"
	ScriptFormFields  = "executor.formFields"
	ScriptVisible     = "executor.visible"
	ScriptScroll      = "executor.scroll"
)

// interactiveJS lists visible clickable elements in document order and tags
// each with data-wayfarer-click; tags from earlier measurements are cleared.
const interactiveJS = `() => {
  document.querySelectorAll('[data-wayfarer-click]').forEach(el => el.removeAttribute('data-wayfarer-click'));
  const els = Array.from(document.querySelectorAll('a, button, [role="button"], input[type="submit"], [onclick]'));
  const out = [];
  for (const el of els) {
    const r = el.getBoundingClientRect();
    const st = window.getComputedStyle(el);
    if (!(r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none')) continue;
    const tag = el.tagName.toLowerCase();
    const classes = typeof el.className === 'string' ? el.className.split(' ').filter(c => c) : [];
    el.setAttribute('data-wayfarer-click', String(out.length));
    out.push({
      index: out.length,
      tag: tag,
      id: el.id || '',
      classes: classes,
      role: el.getAttribute('role') || '',
      text: (el.innerText || el.textContent || el.value || '').trim(),
      title: el.getAttribute('title') || '',
      ariaLabel: el.getAttribute('aria-label') || '',
      hasImage: el.querySelector('img') !== null,
      x: r.left + r.width / 2,
      y: r.top + r.height / 2,
      inViewport: r.top >= 0 && r.top < window.innerHeight
    });
  }
  return out;
}`

const firstResultJS = `() => {
  const links = Array.from(document.querySelectorAll('a h3')).map(h => h.closest('a'));
  for (const link of links) {
    if (!link) continue;
    const r = link.getBoundingClientRect();
    if (r.width > 0 && r.height > 0) {
      return { found: true, text: link.innerText || '', x: r.left + r.width / 2, y: r.top + r.height / 2 };
    }
  }
  return { found: false, text: '', x: 0, y: 0 };
}`

// formFieldsJS tags every visible fillable field with a data attribute so it
// can be addressed by selector afterwards.
const formFieldsJS = `() => {
  document.querySelectorAll('[data-wayfarer-field]').forEach(el => el.removeAttribute('data-wayfarer-field'));
  const els = Array.from(document.querySelectorAll('input:not([type="hidden"]):not([type="submit"]), textarea, select'));
  const out = [];
  let n = 0;
  for (const el of els) {
    const r = el.getBoundingClientRect();
    const st = window.getComputedStyle(el);
    if (!(r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none')) continue;
    el.setAttribute('data-wayfarer-field', String(n));
    out.push({
      index: n,
      tag: el.tagName.toLowerCase(),
      type: (el.getAttribute('type') || '').toLowerCase(),
      name: el.getAttribute('name') || '',
      id: el.id || '',
      placeholder: el.getAttribute('placeholder') || '',
      ariaLabel: el.getAttribute('aria-label') || ''
    });
    n++;
  }
  return out;
}`

const visibleJS = `(sel) => {
  let el = null;
  try { el = document.querySelector(sel); } catch (e) { return false; }
  if (!el) return false;
  const r = el.getBoundingClientRect();
  const st = window.getComputedStyle(el);
  return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
}`

const scrollJS = `(direction, amount) => {
  if (direction === 'down') window.scrollBy(0, window.innerHeight * amount);
  else if (direction === 'up') window.scrollBy(0, -window.innerHeight * amount);
  else if (direction === 'top') window.scrollTo(0, 0);
  else if (direction === 'bottom') window.scrollTo(0, document.body.scrollHeight);
  return window.scrollY;
}`

func script(name, src string, args ...any) browser.Script {
	return browser.Script{Name: name, Source: src, Args: args}
}
