package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/lazyrestore/internal/tab"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// queryTabID reads the tab_id query parameter.
func queryTabID(c *gin.Context) (tab.ID, bool) {
	raw := c.Query("tab_id")
	if raw == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "tab_id query param required"})
		return 0, false
	}
	id, err := tab.ParseID(raw)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid tab_id: " + err.Error()})
		return 0, false
	}
	return id, true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
