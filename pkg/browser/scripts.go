package browser

import (
	"encoding/json"
	"fmt"
)

// jsString renders s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// lookupJS returns a JavaScript expression evaluating to the first element matching loc, or null
func lookupJS(loc Locator) string {
	switch loc.By {
	case ByID:
		return fmt.Sprintf("document.getElementById(%s)", jsString(loc.Value))
	case ByXPath:
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", jsString(loc.Value))
	default:
		return fmt.Sprintf("document.querySelector(%s)", jsString(loc.Value))
	}
}

func stateJS(loc Locator) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {found: false, visible: false, enabled: false, checked: false};
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return {
		found: true,
		visible: rect.width > 0 && rect.height > 0 && style.visibility !== "hidden" && style.display !== "none",
		enabled: !el.disabled,
		checked: !!el.checked,
	};
})()`, lookupJS(loc))
}

// elementJS wraps body so that it runs with el bound to the element; it evaluates to false when nothing matches
func elementJS(loc Locator, body string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return false;
	%s
	return true;
})()`, lookupJS(loc), body)
}

func scrollJS(loc Locator) string {
	return elementJS(loc, "el.scrollIntoView(true);")
}

func clickJS(loc Locator) string {
	return elementJS(loc, "el.click();")
}

func setValueJS(loc Locator, value string) string {
	return elementJS(loc, fmt.Sprintf("el.value = %s;", jsString(value)))
}

func textJS(loc Locator) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	return el ? el.innerText : "";
})()`, lookupJS(loc))
}

// selectOptionJS selects the option whose visible text equals text and fires the change events a user would.
// It evaluates to false when the element or the option is missing.
func selectOptionJS(loc Locator, text string) string {
	return elementJS(loc, fmt.Sprintf(`const opt = Array.from(el.options || []).find(o => o.text.trim() === %s);
	if (!opt) return false;
	el.value = opt.value;
	opt.selected = true;
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));`, jsString(text)))
}
