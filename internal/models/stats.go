package models

// Stats are platform-wide aggregate counts.
type Stats struct {
	Profiles       int64 `json:"profiles"`
	Servers        int64 `json:"servers"`
	Channels       int64 `json:"channels"`
	Messages       int64 `json:"messages"`
	DirectMessages int64 `json:"directMessages"`
}
