// Package archive stores long-form incident artifacts (postmortems) and
// returns retrievable locator strings.
package archive

import "context"

// Archive persists content keyed by incident ID and artifact kind.
type Archive interface {
	// Put stores content and returns a locator the same Archive can Get.
	Put(ctx context.Context, incidentID, kind string, content []byte) (string, error)

	// Get retrieves content by locator.
	Get(ctx context.Context, locator string) ([]byte, error)
}
