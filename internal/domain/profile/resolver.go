package profile

// Resolve picks the identity for this process. The first matching rule wins:
// explicit incognito, explicit profile, explicit picker, a single registered
// profile, the last active profile, the always-open profile, and finally the
// picker. A nil registry behaves as an empty one.
func Resolve(req LaunchRequest, reg *Registry) Decision {
	if reg == nil {
		reg = &Registry{}
	}
	switch {
	case req.Incognito:
		return Decision{Kind: UseIncognito}
	case req.ProfileID != "":
		return Decision{Kind: UseProfile, ProfileID: req.ProfileID}
	case req.SelectProfile:
		return Decision{Kind: PromptSelection}
	case len(reg.Profiles) == 1 && reg.Profiles[0].ID != "":
		return Decision{Kind: UseProfile, ProfileID: reg.Profiles[0].ID}
	}
	if _, ok := reg.Find(reg.LastActiveProfile); ok {
		return Decision{Kind: UseProfile, ProfileID: reg.LastActiveProfile}
	}
	if reg.AlwaysOpenProfile != "" {
		return Decision{Kind: UseProfile, ProfileID: reg.AlwaysOpenProfile}
	}
	return Decision{Kind: PromptSelection}
}
