package Controllers_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/pos-integrity/config"
	"github.com/yeremiapane/pos-integrity/grouping"
	"github.com/yeremiapane/pos-integrity/models"
)

func createGroup(t *testing.T, s *testServer, tableIDs ...uint) grouping.GroupDetails {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/pos/groups", s.staff, map[string]interface{}{
		"tenant_id": 1, "branch_id": 1, "table_ids": tableIDs,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var details grouping.GroupDetails
	decode(t, env, &details)
	return details
}

func TestGroupLifecycle(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})
	a := createTable(t, s, 1)
	b := createTable(t, s, 2)
	c := createTable(t, s, 3)

	group := createGroup(t, s, a.ID, b.ID)
	assert.Equal(t, models.GroupStatusOpen, group.Status)
	assert.Equal(t, uint(2), group.StaffID, "caller is the responsible staff member")
	assert.Len(t, group.Tables, 2)

	path := "/pos/groups/" + itoa(group.ID)

	w, env := s.do(t, http.MethodPost, path+"/tables", s.staff, map[string]interface{}{"table_id": c.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, env, &group)
	assert.Len(t, group.Tables, 3)

	w, env = s.do(t, http.MethodGet, "/pos/tables/"+itoa(c.ID)+"/group", s.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found grouping.GroupDetails
	decode(t, env, &found)
	assert.Equal(t, group.ID, found.ID)

	w, _ = s.do(t, http.MethodDelete, path+"/tables/"+itoa(c.ID), s.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodDelete, path+"/tables/"+itoa(b.ID), s.staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, grouping.InvariantTooFewTables, env.Invariant)

	w, env = s.do(t, http.MethodGet, "/pos/groups?tenant_id=1", s.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var active []grouping.GroupDetails
	decode(t, env, &active)
	assert.Len(t, active, 1)

	w, _ = s.do(t, http.MethodPost, path+"/close", s.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodPost, path+"/dissolve", s.staff, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, grouping.InvariantGroupClosed, env.Invariant)

	w, _ = s.do(t, http.MethodGet, "/pos/tables/"+itoa(a.ID)+"/group", s.staff, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateGroup_Rejections(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})
	a := createTable(t, s, 1)
	b := createTable(t, s, 2)

	w, env := s.do(t, http.MethodPost, "/pos/groups", s.staff, map[string]interface{}{
		"tenant_id": 1, "branch_id": 1, "table_ids": []uint{a.ID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, grouping.InvariantTooFewTables, env.Invariant)

	createGroup(t, s, a.ID, b.ID)
	c := createTable(t, s, 3)
	w, env = s.do(t, http.MethodPost, "/pos/groups", s.staff, map[string]interface{}{
		"tenant_id": 1, "branch_id": 1, "table_ids": []uint{c.ID, a.ID},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, grouping.InvariantTableUnavailable, env.Invariant)
	assert.Contains(t, env.Message, "table "+itoa(a.ID))

	w, _ = s.do(t, http.MethodGet, "/pos/groups", s.staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreBill(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})
	a := createTable(t, s, 1)
	b := createTable(t, s, 2)
	soup := createProduct(t, s, "Soup", "8.00")
	group := createGroup(t, s, a.ID, b.ID)

	addLine(t, s, createOrder(t, s, a.ID).ID, soup.ID, 1)
	addLine(t, s, createOrder(t, s, b.ID).ID, soup.ID, 2)

	w, env := s.do(t, http.MethodGet, "/pos/groups/"+itoa(group.ID)+"/prebill", s.staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bill grouping.PreBill
	decode(t, env, &bill)
	require.Len(t, bill.Lines, 1)
	assert.Equal(t, 3, bill.Lines[0].Quantity)
	assert.True(t, bill.Lines[0].Subtotal.Equal(decimal.NewFromInt(24)))
	assert.True(t, bill.GrandTotal.Equal(decimal.NewFromInt(24)))
	assert.Len(t, bill.Tables, 2)

	w, _ = s.do(t, http.MethodGet, "/pos/groups/"+itoa(group.ID)+"/prebill.pdf", s.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w, _ = s.do(t, http.MethodGet, "/pos/groups/999/prebill", s.staff, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
