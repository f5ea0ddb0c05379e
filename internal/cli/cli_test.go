package cli_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/admin/internal/apiclient"
	"pharmacy/admin/internal/cli"
	"pharmacy/admin/internal/composer"
	"pharmacy/admin/internal/httpapi"
	"pharmacy/admin/internal/notify"
	"pharmacy/admin/internal/service"
	"pharmacy/admin/internal/session"
	"pharmacy/admin/internal/store/memory"
)

const adminPassword = "test-password"

type env struct {
	t       *testing.T
	app     *cli.App
	notices *bytes.Buffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo, err := memory.NewSeeded(adminPassword, nil)
	require.NoError(t, err)
	auth := httpapi.NewAuthManager("test-secret-key-that-is-long-enough", time.Hour, repo, nil)
	srv := httptest.NewServer(httpapi.New(service.New(repo, nil, nil), auth, "*", nil).Handler())
	t.Cleanup(srv.Close)

	sessions := session.NewMemoryStore()
	notices := new(bytes.Buffer)
	return &env{
		t: t,
		app: &cli.App{
			Client:   apiclient.New(srv.URL, 5*time.Second, sessions, nil),
			Sessions: sessions,
			Notifier: notify.NewTerminal(notices),
		},
		notices: notices,
	}
}

func (e *env) run(args ...string) (string, string, error) {
	cmd := cli.NewRootCmd(e.app)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *env) login() {
	_, _, err := e.run("login", "--email", memory.SeedAdminEmail, "--password", adminPassword)
	require.NoError(e.t, err)
}

func (e *env) transactions() []map[string]any {
	out, _, err := e.run("transactions", "list", "-o", "json")
	require.NoError(e.t, err)
	var txs []map[string]any
	require.NoError(e.t, json.Unmarshal([]byte(out), &txs))
	return txs
}

func TestLoginAndWhoami(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run("whoami")
	assert.Error(t, err)

	e.login()
	assert.Contains(t, e.notices.String(), "Login successful")

	out, _, err := e.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, memory.SeedAdminEmail)

	_, _, err = e.run("logout")
	require.NoError(t, err)
	_, _, err = e.run("whoami")
	assert.Error(t, err)
}

func TestCommandsWithoutSessionAreUnauthorized(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run("products", "list")
	assert.True(t, errors.Is(err, apiclient.ErrUnauthorized))
}

func TestProductsListJSON(t *testing.T) {
	e := newEnv(t)
	e.login()

	out, _, err := e.run("products", "list", "-o", "json")
	require.NoError(t, err)

	var products []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &products))
	assert.Len(t, products, 5)
}

func TestCategoriesListYAML(t *testing.T) {
	e := newEnv(t)
	e.login()

	out, _, err := e.run("categories", "list", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Analgesics")
	assert.Contains(t, out, "_id: cat-vitamins")
}

func TestUnknownOutputFormat(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run("products", "list", "-o", "xml")
	assert.Error(t, err)
}

func TestProductCreateValidatesBeforeSending(t *testing.T) {
	e := newEnv(t)
	e.login()

	_, stderr, err := e.run("products", "create", "--price", "-2", "--stock", "4", "--category", "cat-vitamins")
	require.Error(t, err)
	assert.Contains(t, stderr, "Name is required")
	assert.Contains(t, stderr, "Price must be a positive number")

	out, _, err := e.run("products", "create",
		"--name", "Zinc 50mg", "--description", "Tablets", "--price", "80", "--stock", "10", "--category", "cat-vitamins")
	require.NoError(t, err)
	assert.Contains(t, out, "Zinc 50mg")
	assert.Contains(t, e.notices.String(), "Product added successfully")
}

func TestProductUpdateKeepsUnsetFields(t *testing.T) {
	e := newEnv(t)
	e.login()

	out, _, err := e.run("products", "update", "prd-vitamin-c-1000", "--stock", "75", "-o", "json")
	require.NoError(t, err)

	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "Vitamin C 1000mg", p["name"])
	assert.Equal(t, 75.0, p["stock"])
	assert.Equal(t, 150.0, p["price"])
}

func TestDeleteCategoryInUseShowsServerMessage(t *testing.T) {
	e := newEnv(t)
	e.login()

	_, _, err := e.run("categories", "delete", "cat-analgesics")
	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.Status)
}

func TestTransactionCreateSubmitsThroughComposer(t *testing.T) {
	e := newEnv(t)
	e.login()

	out, _, err := e.run("transactions", "create", "--type", "Sale",
		"--line", "prd-paracetamol-500:2", "--line", "prd-ibuprofen-400:1")
	require.NoError(t, err)
	assert.Contains(t, e.notices.String(), "Transaction added successfully")
	assert.Contains(t, out, "Paracetamol 500mg × 2", "list is refetched after saving")

	txs := e.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, 93.0, txs[0]["amount"])
	assert.Equal(t, "usr-admin", txs[0]["createdBy"])

	out, _, err = e.run("dashboard", "-o", "json")
	require.NoError(t, err)
	var dash map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &dash))
	assert.Equal(t, 322.0, dash["totalStock"])
}

func TestTransactionCreateShowsFieldErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "not a number", args: []string{"--type", "Sale", "--line", "prd-paracetamol-500:12abc"}, want: composer.MsgQuantityWhole},
		{name: "over stock", args: []string{"--type", "Sale", "--line", "prd-azithromycin-500:26"}, want: composer.MsgQuantityStock},
		{name: "missing quantity", args: []string{"--type", "Sale", "--line", "prd-paracetamol-500"}, want: composer.MsgQuantityRequired},
		{name: "missing product", args: []string{"--type", "Sale", "--line", ":1"}, want: composer.MsgProductRequired},
		{name: "no type", args: []string{"--line", "prd-paracetamol-500:1"}, want: composer.MsgTypeRequired},
		{name: "no lines", args: []string{"--type", "Purchase"}, want: composer.MsgNoProducts},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.login()

			out, _, err := e.run(append([]string{"transactions", "create"}, tc.args...)...)
			assert.True(t, errors.Is(err, composer.ErrValidation))
			assert.Contains(t, out, tc.want)
			assert.Empty(t, e.transactions())
			assert.NotContains(t, e.notices.String(), "Transaction")
		})
	}
}

func TestTransactionRejectsUnknownProduct(t *testing.T) {
	e := newEnv(t)
	e.login()

	_, _, err := e.run("transactions", "create", "--type", "Sale",
		"--line", "prd-paracetamol-500:1", "--line", "prd-nope:1")
	require.Error(t, err)
	assert.EqualError(t, err, "unknown product prd-nope")
	assert.False(t, errors.Is(err, composer.ErrValidation))
	assert.Empty(t, e.transactions())

	_, _, err = e.run("transactions", "create", "--type", "Sale", "--line", "prd-paracetamol-500:1")
	require.NoError(t, err)
	id := e.transactions()[0]["_id"].(string)

	_, _, err = e.run("transactions", "edit", id, "--add-line", "prd-nope:2")
	assert.EqualError(t, err, "unknown product prd-nope")
	assert.Len(t, e.transactions()[0]["products"], 1)
}

func TestTransactionDryRunPrintsAmount(t *testing.T) {
	e := newEnv(t)
	e.login()

	out, _, err := e.run("transactions", "create", "--type", "Purchase", "--line", "prd-paracetamol-500:2", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Amount: ₹51.00")
	assert.Empty(t, e.transactions())
}

func TestTransactionEditAddsAndRemovesLines(t *testing.T) {
	e := newEnv(t)
	e.login()
	_, _, err := e.run("transactions", "create", "--type", "Purchase", "--line", "prd-paracetamol-500:2")
	require.NoError(t, err)
	id := e.transactions()[0]["_id"].(string)

	_, _, err = e.run("transactions", "edit", id, "--add-line", "prd-vitamin-c-1000:1")
	require.NoError(t, err)
	assert.Contains(t, e.notices.String(), "Transaction updated successfully")

	txs := e.transactions()
	require.Len(t, txs, 1)
	assert.Len(t, txs[0]["products"], 2)
	assert.Equal(t, 201.0, txs[0]["amount"])

	_, _, err = e.run("transactions", "edit", id, "--remove-line", "0", "--type", "Return")
	require.NoError(t, err)
	txs = e.transactions()
	assert.Equal(t, "Return", txs[0]["type"])
	assert.Len(t, txs[0]["products"], 1)
	assert.Equal(t, 150.0, txs[0]["amount"])

	_, _, err = e.run("transactions", "edit", id, "--remove-line", "5")
	assert.Error(t, err)
}

func TestTransactionDelete(t *testing.T) {
	e := newEnv(t)
	e.login()
	_, _, err := e.run("transactions", "create", "--type", "Sale", "--line", "prd-paracetamol-500:1")
	require.NoError(t, err)
	id := e.transactions()[0]["_id"].(string)

	_, _, err = e.run("transactions", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, e.notices.String(), "Transaction deleted successfully")
	assert.Empty(t, e.transactions())
}

func TestDashboardTable(t *testing.T) {
	e := newEnv(t)
	e.login()

	out, _, err := e.run("dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "325 units")
	assert.Contains(t, out, "Antibiotics")
}

func TestRunPrintsReadableError(t *testing.T) {
	e := newEnv(t)

	stderr := new(bytes.Buffer)
	cmd := cli.NewRootCmd(e.app)
	cmd.SetOut(new(bytes.Buffer))
	err := cli.Run(cmd, []string{"dashboard"}, stderr)

	require.Error(t, err)
	assert.Contains(t, stderr.String(), "please log in again")
}
