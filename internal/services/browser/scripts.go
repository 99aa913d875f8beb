package browser

import (
	"encoding/json"
	"fmt"
)

// scriptExpandTruncated clicks the platform's truncated-body affordance
// on every visible post and reports how many were clicked.
const scriptExpandTruncated = `(() => {
	let count = 0;
	document.querySelectorAll('button[data-testid="tweet-text-show-more-link"]').forEach(btn => {
		try {
			btn.click();
			count++;
		} catch {}
	});
	return count;
})()`

// scriptContentExtent probes how much content has been loaded.
const scriptContentExtent = `document.body.scrollHeight`

// scriptClickExpanders builds a script that clicks every role=button
// element whose text contains one of the given lowercase labels.
func scriptClickExpanders(labels []string) (string, error) {
	encoded, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to encode expander labels: %w", err)
	}
	return fmt.Sprintf(`(() => {
	const labels = %s;
	let count = 0;
	document.querySelectorAll('div[role="button"], button[role="button"], button').forEach(btn => {
		const text = (btn.textContent || '').toLowerCase().trim();
		if (!text) return;
		if (labels.some(label => text.includes(label))) {
			try {
				btn.click();
				count++;
			} catch {}
		}
	});
	return count;
})()`, encoded), nil
}
