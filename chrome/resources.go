// CLAUDE:SUMMARY Intercepts and blocks images, fonts and media on session pages; stylesheets always pass.
package chrome

import (
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking sets up request interception to block the given
// resource types. The returned router must be stopped with the session.
func applyResourceBlocking(page *rod.Page, types []string, logger *slog.Logger) (*rod.HijackRouter, error) {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(t)
		if t == "stylesheets" || t == "stylesheet" {
			logger.Warn("chrome: refusing to block stylesheets, computed styles are checked")
			continue
		}
		blockSet[t] = true
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return nil, err
	}

	go router.Run()

	return router, nil
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch strings.ToLower(resType) {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	}
	return false
}
