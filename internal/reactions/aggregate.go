// Package reactions folds per-user reactions into per-emoji groups.
package reactions

import (
	"sort"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/models"
)

type Group struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"user_ids"`

	first time.Time
}

// Aggregate groups the reactions of one message by emoji. Each user counts
// once because the input is keyed by user id. Groups are ordered by count,
// then by the earliest reaction in the group, then by emoji.
func Aggregate(byUser map[string]models.Reaction) []Group {
	if len(byUser) == 0 {
		return nil
	}
	idx := make(map[string]int)
	var groups []Group
	for uid, r := range byUser {
		if r.Emoji == "" {
			continue
		}
		i, ok := idx[r.Emoji]
		if !ok {
			i = len(groups)
			idx[r.Emoji] = i
			groups = append(groups, Group{Emoji: r.Emoji, first: r.At})
		}
		g := &groups[i]
		g.Count++
		g.UserIDs = append(g.UserIDs, uid)
		if r.At.Before(g.first) {
			g.first = r.At
		}
	}
	for i := range groups {
		sort.Strings(groups[i].UserIDs)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if !a.first.Equal(b.first) {
			return a.first.Before(b.first)
		}
		return a.Emoji < b.Emoji
	})
	return groups
}

// Apply returns a copy of byUser with userID's reaction replaced, or removed
// when r is nil.
func Apply(byUser map[string]models.Reaction, userID string, r *models.Reaction) map[string]models.Reaction {
	out := make(map[string]models.Reaction, len(byUser)+1)
	for k, v := range byUser {
		out[k] = v
	}
	if r == nil {
		delete(out, userID)
	} else {
		out[userID] = *r
	}
	return out
}
