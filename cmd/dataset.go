package cmd

import (
	"fmt"

	"github.com/segin2005/efgrabber/internal/app"
	"github.com/segin2005/efgrabber/internal/supervisor"
)

// resolveCollectionConfig builds a CollectionConfig from a registered
// dataset entry when --data-set names one, letting manual flags override
// individual fields; an unregistered collection requires at least
// --file-url-base to be set explicitly.
func resolveCollectionConfig(a *app.App, flags runFlags) (supervisor.CollectionConfig, error) {
	cc := supervisor.CollectionConfig{
		CollectionID: flags.dataSet,
		BaseURL:      flags.baseURL,
		FileURLBase:  flags.fileURLBase,
		Prefix:       flags.prefix,
		Root:         flags.output,
		FirstID:      flags.start,
		LastID:       flags.end,
	}

	if ds, ok := a.Config.Dataset(flags.dataSet); ok {
		if cc.BaseURL == "" {
			cc.BaseURL = ds.BaseURL
		}
		if cc.FileURLBase == "" {
			cc.FileURLBase = ds.FileURLBase
		}
		if cc.Prefix == "" {
			cc.Prefix = ds.FilePrefix
		}
		if cc.FirstID == 0 {
			cc.FirstID = ds.FirstID
		}
		if cc.LastID == 0 {
			cc.LastID = ds.LastID
		}
		if cc.Root == "" {
			cc.Root = ds.Name
		}
	}

	if cc.Root == "" {
		cc.Root = fmt.Sprintf("data-set-%d", flags.dataSet)
	}
	if cc.FileURLBase == "" {
		return cc, fmt.Errorf("--data-set %d is not registered; supply --file-url-base, --base-url, and --prefix manually", flags.dataSet)
	}
	if cc.LastID != 0 && cc.FirstID > cc.LastID {
		return cc, fmt.Errorf("--start (%d) must be <= --end (%d)", cc.FirstID, cc.LastID)
	}
	return cc, nil
}
