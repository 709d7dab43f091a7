package normalize

// The page-context half of the normalizer. Each script is a function
// expression shipped to the driver together with JSON-serialized
// arguments; nothing here runs in this process.
//
// Text nodes are collected depth-first beneath the union of elements
// matched by the selectors, in document order. That traversal order is
// the contract between capture and restore: two executions against an
// unchanged DOM must yield the same sequence.
const collectTextsScript = `(selectors) => {
	const texts = [];
	const seen = new Set();
	const collect = (node) => {
		for (const child of node.childNodes) {
			if (child.nodeType === Node.TEXT_NODE) {
				texts.push(child.nodeValue);
			} else {
				collect(child);
			}
		}
	};
	for (const sel of selectors) {
		for (const el of document.querySelectorAll(sel)) {
			if (seen.has(el)) continue;
			seen.add(el);
			collect(el);
		}
	}
	return texts;
}`

// setTextsScript re-runs the same traversal and overwrites each text
// node positionally, but only when the live node count equals the
// snapshot length. On drift it reports back instead of mutating.
const setTextsScript = `(selectors, texts) => {
	const nodes = [];
	const seen = new Set();
	const collect = (node) => {
		for (const child of node.childNodes) {
			if (child.nodeType === Node.TEXT_NODE) {
				nodes.push(child);
			} else {
				collect(child);
			}
		}
	};
	for (const sel of selectors) {
		for (const el of document.querySelectorAll(sel)) {
			if (seen.has(el)) continue;
			seen.add(el);
			collect(el);
		}
	}
	if (nodes.length !== texts.length) {
		return { applied: false, found: nodes.length };
	}
	nodes.forEach((node, i) => { node.nodeValue = texts[i]; });
	return { applied: true, found: nodes.length };
}`

// setHiddenScript hides via a single global style rule plus a marker
// class. Unhiding removes the style element and strips the marker from
// every element currently carrying it, not just the current selector
// matches, so restoration is complete even if the selector set changed
// between calls.
const setHiddenScript = `(selectors, hidden) => {
	const styleId = 'snapdiff-hide-style';
	const marker = 'snapdiff-hidden';
	if (hidden) {
		if (!document.getElementById(styleId)) {
			const style = document.createElement('style');
			style.id = styleId;
			style.textContent = '.' + marker + ' { display: none !important; }';
			document.head.appendChild(style);
		}
		for (const sel of selectors) {
			for (const el of document.querySelectorAll(sel)) {
				el.classList.add(marker);
			}
		}
	} else {
		const style = document.getElementById(styleId);
		if (style) style.remove();
		for (const el of document.querySelectorAll('.' + marker)) {
			el.classList.remove(marker);
		}
	}
	return true;
}`
