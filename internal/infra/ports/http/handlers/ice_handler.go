package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/TalkRooms/internal/application/config"
	"github.com/qrave1/TalkRooms/internal/infra/appctx"
)

type IceHandler struct {
	cfg *config.Config
	now func() time.Time
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg, now: time.Now}
}

type IceServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
}

// IceServers выдаёт STUN и, если настроен coturn, TURN с временными кредами (TURN REST API)
func (h *IceHandler) IceServers(c echo.Context) error {
	resp := IceServersResponse{
		ICEServers: []webrtc.ICEServer{h.cfg.StunServer},
	}

	if !h.cfg.CoturnServer.Enabled() {
		return c.JSON(http.StatusOK, resp)
	}

	userID, _ := appctx.UserID(c.Request().Context())
	username, credential := turnCredentials(
		h.cfg.CoturnServer.Secret,
		userID,
		h.now().Add(h.cfg.CoturnServer.CredsTTL),
	)

	resp.ICEServers = append(resp.ICEServers, webrtc.ICEServer{
		URLs: []string{
			h.cfg.TurnUDPServer.URLs[0],
			h.cfg.TurnTCPServer.URLs[0],
		},
		Username:   username,
		Credential: credential,
	})

	return c.JSON(http.StatusOK, resp)
}

// turnCredentials - username вида "expiry:user", пароль - HMAC-SHA1 от username на static-auth-secret
func turnCredentials(secret, userID string, expiresAt time.Time) (string, string) {
	username := fmt.Sprintf("%d", expiresAt.Unix())
	if userID != "" {
		username += ":" + userID
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))

	return username, base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
