package authflow

import "time"

// State is the client side half of a pending federated login, keyed by the
// OAuth state parameter.
type State struct {
	Provider     string
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, flow *State) error
	Get(state string) (*State, error)
	Delete(state string) error
	// DeleteOlderThan removes flows created before cutoff and returns how many went.
	DeleteOlderThan(cutoff time.Time) int
}
