package Controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/pos-integrity/config"
	"github.com/yeremiapane/pos-integrity/database"
	"github.com/yeremiapane/pos-integrity/grouping"
	"github.com/yeremiapane/pos-integrity/guard"
	"github.com/yeremiapane/pos-integrity/integrity"
	"github.com/yeremiapane/pos-integrity/kds"
	"github.com/yeremiapane/pos-integrity/metrics"
	"github.com/yeremiapane/pos-integrity/router"
	"github.com/yeremiapane/pos-integrity/services"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

type testServer struct {
	db     *gorm.DB
	router *gin.Engine
	hub    *kds.Hub
	admin  string
	staff  string
}

type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	Invariant string          `json:"invariant"`
	Retryable bool            `json:"retryable"`
	Data      json.RawMessage `json:"data"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestServer(t *testing.T, reconcile config.ReconcileConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub := kds.NewHub()

	r := router.SetupRouter(router.Deps{
		DB:             db,
		Pos:            services.NewPosService(db, guard.New(db, m), services.WithPosNotifier(hub)),
		Groups:         grouping.NewManager(db, grouping.WithNotifier(hub), grouping.WithMetrics(m)),
		Reconciliation: services.NewReconciliationService(db, integrity.NewEngine(db, integrity.WithMetrics(m)), services.WithNotifier(hub), services.WithMetrics(m)),
		Hub:            hub,
		Gatherer:       reg,
		HTTP:           config.HTTPConfig{CORSAllowOrigins: []string{"*"}},
		Reconcile:      reconcile,
	})

	admin, err := utils.GenerateToken(1, 0, kds.RoleAdmin, time.Hour)
	require.NoError(t, err)
	staff, err := utils.GenerateToken(2, 1, kds.RoleStaff, time.Hour)
	require.NoError(t, err)

	return &testServer{db: db, router: r, hub: hub, admin: admin, staff: staff}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode(t *testing.T, env envelope, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dest), string(env.Data))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
