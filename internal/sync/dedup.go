package sync

import "github.com/matheus3301/mailmirror/internal/provider"

// Dedupe returns the fetched messages whose id is not in existing, sorted by
// sent time. When the provider repeats an id, the first instance wins.
// Messages without an id are dropped.
func Dedupe(fetched []provider.Message, existing map[string]struct{}) []provider.Message {
	seen := make(map[string]struct{}, len(fetched))
	out := make([]provider.Message, 0, len(fetched))
	for _, m := range fetched {
		if m.ID == "" {
			continue
		}
		if _, ok := existing[m.ID]; ok {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	provider.SortMessages(out)
	return out
}
