package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `browserhost runs the content sessions behind a browser shell.

Core concepts:
- Profile: a named identity with its own persistent storage under <data>/profiles/<id>.
- Partition: the storage key of a content session. persist:<id> is on disk, incognito and temp:<id> are in memory.
- Filter engine: the ad blocker shared by every session. Whitelisted sites are exempt.
- Tab sleep: idle tabs are put to sleep after the configured freeze time.

Events (downloads, tab sleep, shortcuts, updates) arrive as logging notifications once a log level is set.

Docs:
- browserhost://docs/index
- browserhost://docs/events
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "browserhost://docs/index",
		Name:        "docs_index",
		Title:       "browserhost docs index",
		Description: "Entry point: startup flow, profiles and partitions.",
		Content: `# browserhost

## Startup

1. ` + "`get-launch-state`" + ` tells you whether a profile picker is needed.
   - ` + "`prompt`" + `: show the picker, then ` + "`select-profile`" + `. The host restarts into the chosen profile.
   - ` + "`profile`" + ` or ` + "`incognito`" + `: open the returned URLs in the returned partition.
2. ` + "`open-tab`" + ` loads a URL. Report activity with ` + "`tab-accessed`" + ` so idle tabs can sleep.

## Profiles

Deleting a profile removes its storage directory. The profile the host is running as cannot be deleted.

## Filtering

` + "`save-settings`" + ` with a changed whitelist or ad block switch re-applies filtering to every live session.
` + "`refresh-filter-lists`" + ` downloads the lists again.
`,
	},
	{
		URI:         "browserhost://docs/events",
		Name:        "docs_events",
		Title:       "Events",
		Description: "Event names and payloads pushed by the host.",
		Content: `# Events

Every event carries ` + "`seq`" + `, ` + "`event`" + `, ` + "`data`" + ` and ` + "`time`" + `.

| event | data |
|---|---|
| download-started | download item |
| download-progress | download item |
| download-complete | download item with final state |
| sleep-tab | tab_id |
| trigger-command-palette | action, tab_id |
| trigger-quick-search | action, tab_id |
| toggle-tab-overview | action, tab_id |
| shortcut | action, tab_id for fixed bindings such as reload |
| open-url | url, partition, source |
| update-available | release |
| update-downloaded | release |
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
