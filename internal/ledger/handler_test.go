package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWalletApp(t *testing.T) (*fiber.App, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	h := NewHandler(store)

	app := fiber.New()
	app.Post("/wallets", h.Create)
	app.Get("/wallets/:walletId", h.Get)
	app.Get("/owners/:ownerId/wallets/:currency", h.ByOwner)
	return app, store
}

func walletPost(t *testing.T, app *fiber.App, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, "/wallets", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestCreateWalletEndpoint(t *testing.T) {
	app, _ := setupWalletApp(t)
	owner := uuid.NewString()

	status, body := walletPost(t, app, map[string]string{"owner_id": owner, "currency": "VND"})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, owner, body["owner_id"])
	assert.Equal(t, "0", body["balance"])

	// Re-posting the same pair returns the same wallet.
	status, again := walletPost(t, app, map[string]string{"owner_id": owner, "currency": "VND"})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, body["id"], again["id"])

	status, _ = walletPost(t, app, map[string]string{"owner_id": "nope", "currency": "VND"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = walletPost(t, app, map[string]string{"owner_id": owner})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestWalletByOwnerEndpoint(t *testing.T) {
	app, store := setupWalletApp(t)
	owner := uuid.New()

	created, err := store.GetOrCreateWallet(context.Background(), owner, "VND")
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet,
		"/owners/"+owner.String()+"/wallets/VND", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, created.ID.String(), body["id"])

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet,
		"/owners/"+owner.String()+"/wallets/USD", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
