package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanctl-backend/config"
	"fanctl-backend/internal/api"
	"fanctl-backend/internal/auth"
	"fanctl-backend/internal/fanctl"
	"fanctl-backend/internal/ingest"
	"fanctl-backend/internal/model"
	"fanctl-backend/internal/mw"
	"fanctl-backend/internal/notification"
	"fanctl-backend/internal/realtime"
	"fanctl-backend/internal/store"
	"fanctl-backend/internal/testdb"
)

const secret = "integration-secret"

type client struct {
	t       *testing.T
	baseURL string
	token   string
}

func (c *client) request(method, path, contentType string, body *bytes.Buffer) (int, []byte) {
	c.t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	require.NoError(c.t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, out.Bytes()
}

func (c *client) json(method, path string, payload any, into any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(payload))
	}
	status, body := c.request(method, path, "application/json", &buf)
	if into != nil && status < 300 {
		require.NoError(c.t, json.Unmarshal(body, into), string(body))
	}
	return status
}

func (c *client) upload(path string, fields map[string]string, content string, into any) int {
	c.t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(c.t, mpw.WriteField(k, v))
	}
	part, err := mpw.CreateFormFile("file", "upload.csv")
	require.NoError(c.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(c.t, err)
	require.NoError(c.t, mpw.Close())

	status, body := c.request(http.MethodPost, path, mpw.FormDataContentType(), &buf)
	if into != nil && status < 300 {
		require.NoError(c.t, json.Unmarshal(body, into), string(body))
	}
	return status
}

// browserKeys returns a p256dh/auth pair the push library can encrypt to.
func browserKeys(t *testing.T) (string, string) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	authSecret := make([]byte, 16)
	_, err = rand.Read(authSecret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(authSecret)
}

// TestFanLifecycle drives the service the way the dashboard does: declare a
// model, import fans onto a floor, switch one on over the websocket and
// check that readers, the push subscriber and the cleanup all observe it.
func TestFanLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pushed := make(chan *http.Request, 4)
	pushServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed <- r
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushServer.Close()

	vapidPrivate, vapidPublic, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60},
		Auth:   config.AuthConfig{JWTSecret: secret, AdminRole: "SuperAdmin"},
		Import: config.ImportConfig{UploadDir: t.TempDir(), MaxUploadBytes: 1 << 20, MaxRows: 100, TimeoutSeconds: 5},
	}
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		Subscriber:      "mailto:ops@example.com",
		TTL:             60,
	}

	appStore := store.NewGormStore(testdb.Open(t))
	pool := notification.NewWorkerPool(2, 8, appStore, webpushOptions)
	pool.Start(ctx)

	respCache := mw.NewResponseCache(cfg.CacheTTL())
	controller := fanctl.NewController(appStore,
		fanctl.WithNotifier(pool),
		fanctl.WithRecorder(fanctl.RecorderFunc(func(model.Fan) { respCache.Flush() })),
	)
	hub := realtime.NewHub(cfg.WebSocket, controller)
	go hub.Run(ctx)

	handler := api.NewHandler(cfg, appStore, ingest.NewCoordinator(appStore, cfg.Import), controller, hub, webpushOptions)
	server := httptest.NewServer(api.NewRouter(handler, respCache))
	defer server.Close()

	token, err := auth.IssueToken("operator-1", "SuperAdmin", secret, time.Hour)
	require.NoError(t, err)
	c := &client{t: t, baseURL: server.URL, token: token}

	// Floor and model.
	var floor struct {
		Floor model.Floor `json:"floor"`
	}
	require.Equal(t, http.StatusCreated, c.json(http.MethodPost, "/api/floors", gin.H{"name": "Level 2"}, &floor))
	floorID := floor.Floor.ID

	var registers ingest.RegisterResult
	require.Equal(t, http.StatusCreated, c.upload("/api/fanmodels/upload",
		map[string]string{"ipAddress": "192.168.10.20", "port": "502", "totalDevices": "3"},
		"Holding register,Description,Read/Write,Value\n40001,Speed,RW,0-3000\n40002,Fault,R,0-1\n",
		&registers))
	require.NotNil(t, registers.FanModel)
	assert.Len(t, registers.FanModel.Registers, 2)
	modelID := registers.FanModel.ID

	// Fans.
	var fans ingest.FanResult
	require.Equal(t, http.StatusCreated, c.upload("/api/fans/upload",
		map[string]string{"floorId": floorID},
		"FanId,Fan Name,FanModelId,RPM\n1,North,"+modelID+",0\n2,South,"+modelID+",0\n",
		&fans))
	require.Equal(t, 2, fans.InsertedCount)

	var listed []model.Fan
	require.Equal(t, http.StatusOK, c.json(http.MethodGet, "/api/floors/"+floorID+"/fans", nil, &listed))
	require.Len(t, listed, 2)
	fanID := listed[0].ID

	// Push subscriber for the floor.
	p256dh, authSecret := browserKeys(t)
	require.Equal(t, http.StatusCreated, c.json(http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": pushServer.URL + "/push/device-1",
		"p256dh":   p256dh,
		"auth":     authSecret,
		"floors":   []string{floorID},
	}, nil))

	// Switch the fan on over the websocket.
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(gin.H{
		"event": realtime.EventUpdateFanSpeed,
		"data":  gin.H{"floorId": floorID, "fanId": fanID, "rpm": 1200},
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame struct {
		Event string    `json:"event"`
		Data  model.Fan `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, realtime.EventFanUpdated, frame.Event)
	assert.Equal(t, 1200, frame.Data.RPM)
	assert.Equal(t, model.FanOn, frame.Data.Status)

	// Readers see the change despite the cached listing.
	listed = nil
	require.Equal(t, http.StatusOK, c.json(http.MethodGet, "/api/floors/"+floorID+"/fans", nil, &listed))
	for _, f := range listed {
		if f.ID == fanID {
			assert.Equal(t, 1200, f.RPM)
			assert.Equal(t, model.FanOn, f.Status)
		}
	}

	// The subscriber is told about the transition.
	select {
	case r := <-pushed:
		assert.Equal(t, "/push/device-1", r.URL.Path)
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "vapid "))
	case <-time.After(5 * time.Second):
		t.Fatal("no push notification was delivered")
	}

	// Capacity is enforced against what is already persisted.
	status := c.upload("/api/fans/upload",
		map[string]string{"floorId": floorID},
		"FanId,Fan Name,FanModelId,RPM\n3,East,"+modelID+",0\n4,West,"+modelID+",0\n",
		nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	// Deleting the floor removes its fans.
	var deletion struct {
		DeletedFans   int64 `json:"deletedFans"`
		DeletedLayout bool  `json:"deletedLayout"`
	}
	require.Equal(t, http.StatusOK, c.json(http.MethodDelete, "/api/floors/"+floorID, nil, &deletion))
	assert.Equal(t, int64(2), deletion.DeletedFans)
	assert.False(t, deletion.DeletedLayout)

	require.Equal(t, http.StatusOK, c.json(http.MethodGet, "/api/fans", nil, &listed))
	assert.Empty(t, listed)
}
