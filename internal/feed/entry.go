package feed

import (
	"time"

	"example.com/socialfeed/internal/models"
)

// Entry is one ranked feed item. EffectiveDate is the post's own creation
// time, or the latest repost time when followees reposted it.
type Entry struct {
	Post          models.Post `json:"post"`
	EffectiveDate time.Time   `json:"effective_date"`
	Reposters     []string    `json:"reposters"`
}
