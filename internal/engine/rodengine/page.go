package rodengine

import (
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/rpggio/browserhost/internal/domain/filter"
	"github.com/rpggio/browserhost/internal/domain/shortcut"
	"github.com/ysmood/gson"
)

const keyBinding = "__browserhostKey"

// keyListener forwards key presses to the exposed binding before the page
// sees them.
const keyListener = `(() => {
	window.addEventListener('keydown', (e) => {
		const send = window.` + keyBinding + `;
		if (typeof send !== 'function') return;
		send({type: 'keyDown', key: e.key, code: e.code,
			control: e.ctrlKey, meta: e.metaKey, shift: e.shiftKey, alt: e.altKey});
	}, true);
})()`

var resourceTypes = map[proto.NetworkResourceType]filter.ResourceType{
	proto.NetworkResourceTypeDocument:   filter.TypeDocument,
	proto.NetworkResourceTypeStylesheet: filter.TypeStylesheet,
	proto.NetworkResourceTypeImage:      filter.TypeImage,
	proto.NetworkResourceTypeMedia:      filter.TypeMedia,
	proto.NetworkResourceTypeFont:       filter.TypeFont,
	proto.NetworkResourceTypeScript:     filter.TypeScript,
	proto.NetworkResourceTypeXHR:        filter.TypeXHR,
	proto.NetworkResourceTypeFetch:      filter.TypeXHR,
	proto.NetworkResourceTypeWebSocket:  filter.TypeWebSocket,
	proto.NetworkResourceTypePing:       filter.TypePing,
}

func resourceType(t proto.NetworkResourceType) filter.ResourceType {
	if rt, ok := resourceTypes[t]; ok {
		return rt
	}
	return filter.TypeOther
}

// filterRequest builds the filter query for an intercepted request. The
// referrer stands in for the page that issued it.
func filterRequest(url, referer string, t proto.NetworkResourceType) filter.Request {
	return filter.Request{URL: url, SourceURL: referer, Type: resourceType(t)}
}

func decodeKeyEvent(j gson.JSON) shortcut.KeyEvent {
	return shortcut.KeyEvent{
		Type:    j.Get("type").Str(),
		Key:     j.Get("key").Str(),
		Code:    j.Get("code").Str(),
		Control: j.Get("control").Bool(),
		Meta:    j.Get("meta").Bool(),
		Shift:   j.Get("shift").Bool(),
		Alt:     j.Get("alt").Bool(),
	}
}

// isPopup reports whether a new target was opened by another page.
func isPopup(info *proto.TargetTargetInfo) bool {
	return info != nil && info.Type == proto.TargetTargetInfoTypePage && info.OpenerID != ""
}

// navigable reports whether a URL should be surfaced as an open request.
func navigable(url string) bool {
	return url != "" && url != "about:blank" && !strings.HasPrefix(url, "devtools://")
}
