package ipc

import (
	"github.com/rpggio/browserhost/internal/domain/download"
	"github.com/rpggio/browserhost/internal/domain/session"
	"github.com/rpggio/browserhost/internal/domain/settings"
	"github.com/rpggio/browserhost/internal/domain/shortcut"
)

type CreateProfileParams struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type ProfileIDParams struct {
	ID string `json:"id"`
}

type RenameProfileParams struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SelectProfileParams struct {
	ID         string `json:"id"`
	AlwaysOpen bool   `json:"always_open,omitempty"`
}

type DownloadControlParams struct {
	ID     string          `json:"id"`
	Action download.Action `json:"action"`
}

type SaveAsParams struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

type ExtensionStorageParams struct {
	Key string `json:"key"`
}

type SetExtensionStorageParams struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

type TabParams struct {
	TabID string `json:"tab_id"`
}

type KeyEventParams struct {
	TabID string            `json:"tab_id,omitempty"`
	Event shortcut.KeyEvent `json:"event"`
}

type SetShortcutsEnabledParams struct {
	Enabled bool `json:"enabled"`
}

type SaveSettingsParams struct {
	Settings settings.Settings `json:"settings"`
}

type OpenTabParams struct {
	Partition session.PartitionKey `json:"partition,omitempty"`
	URL       string               `json:"url"`
}

type SecondInstanceParams struct {
	Argv []string `json:"argv"`
}

// Ack acknowledges a method without a result.
type Ack struct {
	OK bool `json:"ok"`
}

type ExtensionStorageResponse struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

type KeyEventResponse struct {
	Handled bool            `json:"handled"`
	Action  shortcut.Action `json:"action,omitempty"`
}

type RefreshFilterListsResponse struct {
	Rules int `json:"rules"`
}

type OpenTabResponse struct {
	TabID string `json:"tab_id"`
}

type ShortcutsResponse struct {
	Bindings map[shortcut.Action][]string `json:"bindings"`
}
