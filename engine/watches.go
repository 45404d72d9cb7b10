package engine

import (
	"fmt"

	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/resource"
)

// redactedValue is what the watcher API returns in place of any stored
// password. Files on disk carry this placeholder; the real credentials
// come from the profile's watcher_users map at load time.
const redactedValue = "::es_redacted::"

// restoreWatchPasswords walks a watch document and replaces every
// redacted password with the configured credential for the username
// found alongside it. A redacted value with no configured credential
// fails the load: importing the placeholder would break the watch.
func restoreWatchPasswords(c *Controller, id string, doc resource.Document) (resource.Document, error) {
	return doc, restorePasswords(doc, c.options.WatcherUsers, id)
}

func restorePasswords(doc resource.Document, passwords map[string]string, watchID string) error {
	for key, value := range doc {
		if nested, ok := value.(map[string]any); ok {
			if err := restorePasswords(nested, passwords, watchID); err != nil {
				return err
			}
		}
		if value != redactedValue {
			continue
		}

		username, _ := doc["username"].(string)
		password, ok := passwords[username]
		if !ok {
			return faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("no password configured for user %q in watch %s; set options.watcher_users.%s in the config file",
					username, watchID, username), nil)
		}
		doc[key] = password
	}
	return nil
}
