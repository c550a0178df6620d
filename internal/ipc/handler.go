package ipc

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Handler dispatches IPC methods to the host API.
type Handler struct {
	api    API
	logger *zap.Logger
}

// NewHandler creates a new IPC handler.
func NewHandler(api API, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{api: api, logger: logger.Named("ipc")}
}

// Handle dispatches one request. Errors are mapped to *APIError where the
// cause is known.
func (h *Handler) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	result, err := h.dispatch(ctx, method, params)
	if err != nil {
		h.logger.Debug("method failed", zap.String("method", method), zap.Error(err))
		return nil, mapError(err)
	}
	return result, nil
}

func (h *Handler) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodGetLaunchState:
		return h.api.LaunchState(), nil

	// Profiles
	case MethodGetProfilesList:
		return h.api.ListProfiles(ctx), nil
	case MethodCreateProfile:
		var req CreateProfileParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.api.CreateProfile(ctx, req.Name, req.Avatar)
	case MethodDeleteProfile:
		var req ProfileIDParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireField("id", req.ID); err != nil {
			return nil, err
		}
		if err := h.api.DeleteProfile(ctx, req.ID); err != nil {
			return nil, err
		}
		return Ack{OK: true}, nil
	case MethodRenameProfile:
		var req RenameProfileParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireField("id", req.ID); err != nil {
			return nil, err
		}
		return h.api.RenameProfile(ctx, req.ID, req.Name)
	case MethodSelectProfile:
		var req SelectProfileParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireField("id", req.ID); err != nil {
			return nil, err
		}
		if err := h.api.SelectProfile(ctx, req.ID, req.AlwaysOpen); err != nil {
			return nil, err
		}
		return Ack{OK: true}, nil

	// Downloads
	case MethodDownloadControl:
		var req DownloadControlParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.api.DownloadControl(req.ID, req.Action); err != nil {
			return nil, err
		}
		return Ack{OK: true}, nil
	case MethodSaveAs:
		var req SaveAsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireField("url", req.URL); err != nil {
			return nil, err
		}
		if err := h.api.SaveAs(req.URL, req.Path); err != nil {
			return nil, err
		}
		return Ack{OK: true}, nil
	case MethodListDownloads:
		return h.api.ListDownloads(), nil
	case MethodGetDownloadHistory:
		return h.api.DownloadHistory(ctx)

	// Filtering
	case MethodUpdateAdblockerSettings:
		return h.api.UpdateAdblockerSettings(ctx)
	case MethodRefreshFilterLists:
		n, err := h.api.RefreshFilterLists(ctx)
		if err != nil {
			return nil, err
		}
		return RefreshFilterListsResponse{Rules: n}, nil

	// Extension storage
	case MethodGetExtensionStorage:
		var req ExtensionStorageParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		value, err := h.api.GetExtensionStorage(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		return ExtensionStorageResponse{Key: req.Key, Value: value}, nil
	case MethodSetExtensionStorage:
		var req SetExtensionStorageParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.api.SetExtensionStorage(ctx, req.Key, req.Value); err != nil {
			return nil, err
		}
		return Ack{OK: true}, nil

	// Tabs
	case MethodTabAccessed, MethodWakeTab, MethodTabClosed:
		var req TabParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireField("tab_id", req.TabID); err != nil {
			return nil, err
		}
		switch method {
		case MethodTabAccessed:
			h.api.TabAccessed(req.TabID)
		case MethodWakeTab:
			h.api.WakeTab(req.TabID)
		default:
			h.api.TabClosed(req.TabID)
		}
		return Ack{OK: true}, nil
	case MethodOpenTab:
		var req OpenTabParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := requireField("url", req.URL); err != nil {
			return nil, err
		}
		tabID, err := h.api.OpenTab(ctx, req.Partition, req.URL)
		if err != nil {
			return nil, err
		}
		return OpenTabResponse{TabID: tabID}, nil
	case MethodListSessions:
		return h.api.Sessions(), nil

	// Shortcuts
	case MethodKeyEvent:
		var req KeyEventParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		action, handled := h.api.KeyEvent(req.TabID, req.Event)
		return KeyEventResponse{Handled: handled, Action: action}, nil
	case MethodSetShortcutsEnabled:
		var req SetShortcutsEnabledParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		h.api.SetShortcutsEnabled(req.Enabled)
		return Ack{OK: true}, nil
	case MethodGetShortcuts:
		return ShortcutsResponse{Bindings: h.api.Shortcuts()}, nil

	// Settings
	case MethodGetSettings:
		return h.api.Settings(), nil
	case MethodSaveSettings:
		var req SaveSettingsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.api.SaveSettings(ctx, req.Settings)

	case MethodInstallUpdate:
		return h.api.InstallUpdate()
	case MethodSecondInstance:
		var req SecondInstanceParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.api.HandleSecondInstance(req.Argv); err != nil {
			return nil, err
		}
		return Ack{OK: true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidParams, name)
	}
	return nil
}
