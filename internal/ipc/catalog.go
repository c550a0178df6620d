package ipc

// Method names accepted by Handler.
const (
	MethodGetLaunchState          = "get-launch-state"
	MethodGetProfilesList         = "get-profiles-list"
	MethodCreateProfile           = "create-profile"
	MethodDeleteProfile           = "delete-profile"
	MethodRenameProfile           = "rename-profile"
	MethodSelectProfile           = "select-profile"
	MethodDownloadControl         = "download-control"
	MethodSaveAs                  = "save-as"
	MethodListDownloads           = "list-downloads"
	MethodGetDownloadHistory      = "get-download-history"
	MethodUpdateAdblockerSettings = "update-adblocker-settings"
	MethodRefreshFilterLists      = "refresh-filter-lists"
	MethodGetExtensionStorage     = "get-extension-storage"
	MethodSetExtensionStorage     = "set-extension-storage"
	MethodTabAccessed             = "tab-accessed"
	MethodWakeTab                 = "wake-tab"
	MethodTabClosed               = "tab-closed"
	MethodOpenTab                 = "open-tab"
	MethodListSessions            = "list-sessions"
	MethodKeyEvent                = "key-event"
	MethodSetShortcutsEnabled     = "set-shortcuts-enabled"
	MethodGetShortcuts            = "get-shortcuts"
	MethodGetSettings             = "get-settings"
	MethodSaveSettings            = "save-settings"
	MethodInstallUpdate           = "install-update"
	MethodSecondInstance          = "second-instance"
)

// Method describes one IPC method for transports that advertise a catalog.
type Method struct {
	Name        string
	Description string
	InputSchema map[string]any
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolean(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

var noParams = object(map[string]any{})

var tabIDParams = object(map[string]any{"tab_id": str("Tab identifier")}, "tab_id")

// Catalog returns every method with its input schema.
func Catalog() []Method {
	return []Method{
		{
			Name:        MethodGetLaunchState,
			Description: "Get the profile decision made at startup, the active partition and URLs passed on the command line",
			InputSchema: noParams,
		},

		// Profiles
		{
			Name:        MethodGetProfilesList,
			Description: "List profiles and the active profile id",
			InputSchema: noParams,
		},
		{
			Name:        MethodCreateProfile,
			Description: "Create a profile",
			InputSchema: object(map[string]any{
				"name":   str("Display name"),
				"avatar": str("Avatar identifier"),
			}, "name"),
		},
		{
			Name:        MethodDeleteProfile,
			Description: "Delete a profile and its storage directory. The active profile cannot be deleted",
			InputSchema: object(map[string]any{"id": str("Profile id")}, "id"),
		},
		{
			Name:        MethodRenameProfile,
			Description: "Rename a profile",
			InputSchema: object(map[string]any{
				"id":   str("Profile id"),
				"name": str("New display name"),
			}, "id", "name"),
		},
		{
			Name:        MethodSelectProfile,
			Description: "Record the selected profile and restart into it",
			InputSchema: object(map[string]any{
				"id":          str("Profile id"),
				"always_open": boolean("Open this profile on future launches without prompting"),
			}, "id"),
		},

		// Downloads
		{
			Name:        MethodDownloadControl,
			Description: "Pause, resume or cancel an active download",
			InputSchema: object(map[string]any{
				"id": str("Download id"),
				"action": map[string]any{
					"type": "string",
					"enum": []string{"pause", "resume", "cancel"},
				},
			}, "id", "action"),
		},
		{
			Name:        MethodSaveAs,
			Description: "Set the save path for the next download of a URL",
			InputSchema: object(map[string]any{
				"url":  str("Download URL"),
				"path": str("Absolute destination path"),
			}, "url", "path"),
		},
		{
			Name:        MethodListDownloads,
			Description: "List downloads in progress",
			InputSchema: noParams,
		},
		{
			Name:        MethodGetDownloadHistory,
			Description: "List finished downloads, newest first",
			InputSchema: noParams,
		},

		// Filtering
		{
			Name:        MethodUpdateAdblockerSettings,
			Description: "Re-read ad blocker settings and re-apply filtering to every session",
			InputSchema: noParams,
		},
		{
			Name:        MethodRefreshFilterLists,
			Description: "Download the filter lists again and rebuild the engine",
			InputSchema: noParams,
		},

		// Extension storage
		{
			Name:        MethodGetExtensionStorage,
			Description: "Read a value from extension storage",
			InputSchema: object(map[string]any{"key": str("Storage key")}, "key"),
		},
		{
			Name:        MethodSetExtensionStorage,
			Description: "Write a value to extension storage. A null value deletes the key",
			InputSchema: object(map[string]any{
				"key":   str("Storage key"),
				"value": map[string]any{"type": []string{"string", "null"}},
			}, "key"),
		},

		// Tabs
		{
			Name:        MethodTabAccessed,
			Description: "Record activity on a tab, resetting its sleep timer",
			InputSchema: tabIDParams,
		},
		{
			Name:        MethodWakeTab,
			Description: "Wake a sleeping tab",
			InputSchema: tabIDParams,
		},
		{
			Name:        MethodTabClosed,
			Description: "Stop tracking a closed tab",
			InputSchema: tabIDParams,
		},
		{
			Name:        MethodOpenTab,
			Description: "Open a URL in a partition, the primary partition when omitted",
			InputSchema: object(map[string]any{
				"partition": str("Partition key such as persist:<id>"),
				"url":       str("URL to load"),
			}, "url"),
		},
		{
			Name:        MethodListSessions,
			Description: "List content sessions",
			InputSchema: noParams,
		},

		// Shortcuts
		{
			Name:        MethodKeyEvent,
			Description: "Resolve a key event from a tab to a shortcut action",
			InputSchema: object(map[string]any{
				"tab_id": str("Tab the event came from"),
				"event": object(map[string]any{
					"type":    str("keyDown or keyUp"),
					"key":     str("Key value, e.g. t or ArrowLeft"),
					"code":    str("Physical key code"),
					"control": boolean("Control held"),
					"meta":    boolean("Meta held"),
					"shift":   boolean("Shift held"),
					"alt":     boolean("Alt held"),
				}, "type", "key"),
			}, "event"),
		},
		{
			Name:        MethodSetShortcutsEnabled,
			Description: "Suspend or resume shortcut handling",
			InputSchema: object(map[string]any{"enabled": boolean("Whether shortcuts fire")}, "enabled"),
		},
		{
			Name:        MethodGetShortcuts,
			Description: "List the accelerators bound to each action",
			InputSchema: noParams,
		},

		// Settings
		{
			Name:        MethodGetSettings,
			Description: "Get the settings blob",
			InputSchema: noParams,
		},
		{
			Name:        MethodSaveSettings,
			Description: "Replace the settings blob",
			InputSchema: object(map[string]any{
				"settings": map[string]any{"type": "object"},
			}, "settings"),
		},

		{
			Name:        MethodInstallUpdate,
			Description: "Stage the downloaded update for installation on next start",
			InputSchema: noParams,
		},
		{
			Name:        MethodSecondInstance,
			Description: "Hand over the arguments of another launch. URLs are published as open-url events",
			InputSchema: object(map[string]any{
				"argv": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, "argv"),
		},
	}
}
