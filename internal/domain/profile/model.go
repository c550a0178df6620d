package profile

import "slices"

// Profile is a durable, named browsing identity with its own storage.
type Profile struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Avatar string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// Registry is the persisted list of profiles plus the launch preferences.
type Registry struct {
	Profiles          []Profile `json:"profiles" yaml:"profiles"`
	LastActiveProfile string    `json:"last_active_profile,omitempty" yaml:"last_active_profile,omitempty"`
	AlwaysOpenProfile string    `json:"always_open_profile,omitempty" yaml:"always_open_profile,omitempty"`
}

// Find returns the profile with the given id.
func (r *Registry) Find(id string) (Profile, bool) {
	if r == nil || id == "" {
		return Profile{}, false
	}
	i := slices.IndexFunc(r.Profiles, func(p Profile) bool { return p.ID == id })
	if i < 0 {
		return Profile{}, false
	}
	return r.Profiles[i], true
}

// DecisionKind is the outcome of launch-time profile resolution.
type DecisionKind string

const (
	UseProfile      DecisionKind = "profile"
	UseIncognito    DecisionKind = "incognito"
	PromptSelection DecisionKind = "prompt"
)

// Decision says which identity the process runs as.
type Decision struct {
	Kind      DecisionKind `json:"kind"`
	ProfileID string       `json:"profile_id,omitempty"`
}

// LaunchRequest is the subset of launch arguments that affects resolution.
type LaunchRequest struct {
	ProfileID     string
	SelectProfile bool
	Incognito     bool
}
