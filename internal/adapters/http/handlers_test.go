package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/afero"

	handler "github.com/samirrijal/placefinder/internal/adapters/http"
	"github.com/samirrijal/placefinder/internal/adapters/imagestore"
	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/proximity"
	"github.com/samirrijal/placefinder/internal/core/usecases"
	"github.com/samirrijal/placefinder/internal/pkg/token"
)

// ---- Mock repositories ----

type mockPlaceRepo struct {
	mu        sync.Mutex
	places    []domain.Place
	listErr   error
	createErr error
}

func (m *mockPlaceRepo) Create(ctx context.Context, p *domain.Place) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.places = append(m.places, *p)
	return nil
}

func (m *mockPlaceRepo) GetByID(ctx context.Context, id string) (*domain.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.places {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockPlaceRepo) ListAll(ctx context.Context) ([]domain.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.Place(nil), m.places...), nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (m *memUserRepo) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return domain.ErrConflict
	}
	m.users[u.Username] = *u
	return nil
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *memUserRepo) SetRole(ctx context.Context, username string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return domain.ErrNotFound
	}
	u.Role = role
	m.users[username] = u
	return nil
}

// ---- Test helpers ----

const (
	adminUser = "root"
	adminPass = "bootstrap-pass"
)

var (
	guggenheim = domain.Place{
		ID:          "5f0c7a4e-8a4b-4c43-9a8e-0d6b7b8e2f10",
		Name:        "Guggenheim",
		Description: "Museum",
		Location:    domain.Coordinate{Lat: 43.2687, Lng: -2.9340},
		Image:       domain.ImageRef{Key: "g.jpg", URL: "/uploads/g.jpg"},
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	nullIsland = domain.Place{
		ID:        "0b7f7a1c-3c1e-4f43-9a55-1f2e3d4c5b6a",
		Name:      "Null Island",
		Location:  domain.Coordinate{Lat: 0, Lng: 0},
		Image:     domain.ImageRef{Key: "n.png", URL: "/uploads/n.png"},
		CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
)

type testEnv struct {
	app    *fiber.App
	places *mockPlaceRepo
	images *imagestore.Store
	fs     afero.Fs
	auth   *usecases.AuthService
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func newEnv(t *testing.T, places ...domain.Place) *testEnv {
	t.Helper()
	repo := &mockPlaceRepo{places: places}
	fs := afero.NewMemMapFs()
	images, err := imagestore.New(fs, "uploads", "/uploads", 1<<20)
	if err != nil {
		t.Fatal(err)
	}

	tokens, err := token.NewManager("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	auth := usecases.NewAuthService(&memUserRepo{users: make(map[string]domain.User)}, tokens)
	if err := auth.EnsureAdmin(context.Background(), adminUser, adminPass); err != nil {
		t.Fatal(err)
	}

	detector, err := proximity.NewDetector(proximity.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	deps := &handler.Dependencies{
		Places:       usecases.NewPlaceService(repo, images, auth, nil, nil),
		Detection:    usecases.NewDetectionService(repo, detector, nil),
		Auth:         auth,
		Images:       images,
		PublicPrefix: "/uploads",
	}
	return &testEnv{app: setupApp(deps), places: repo, images: images, fs: fs, auth: auth}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	tok, err := e.auth.Login(context.Background(), usecases.Credentials{Username: username, Password: password})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return tok
}

func decodeAPIError(t *testing.T, resp *http.Response) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected %d, got %d", status, resp.StatusCode)
	}
	if apiErr := decodeAPIError(t, resp); apiErr.Code != code {
		t.Errorf("expected code %s, got %s", code, apiErr.Code)
	}
}

func placeForm(t *testing.T, fields map[string]string, imageName string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if imageName != "" {
		fw, err := w.CreateFormFile("image", imageName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(image); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

// ---- Detection ----

func TestDetect_Found(t *testing.T) {
	env := newEnv(t, guggenheim, nullIsland)

	resp := env.do(t, httptest.NewRequest("GET", "/v1/detect?lat=43.2688&lng=-2.9341", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", cc)
	}
	if resp.Header.Get("ETag") != "" {
		t.Error("detect responses must not carry an ETag")
	}

	var got struct {
		ID          string            `json:"id"`
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Location    domain.Coordinate `json:"location"`
		Image       struct {
			URL string `json:"url"`
		} `json:"image"`
		DistanceMeters float64 `json:"distance_m"`
		DistanceLabel  string  `json:"distance_label"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != guggenheim.ID || got.Name != "Guggenheim" || got.Description != "Museum" {
		t.Errorf("unexpected place %+v", got)
	}
	if got.Image.URL != "/uploads/g.jpg" {
		t.Errorf("image url changed: %q", got.Image.URL)
	}
	if got.Location != guggenheim.Location {
		t.Errorf("unexpected location %+v", got.Location)
	}
	if got.DistanceMeters <= 0 || got.DistanceMeters > 100 {
		t.Errorf("unexpected distance %f", got.DistanceMeters)
	}
	if !strings.HasSuffix(got.DistanceLabel, " m") {
		t.Errorf("unexpected label %q", got.DistanceLabel)
	}
}

func TestDetect_ZeroCoordinateIsValid(t *testing.T) {
	env := newEnv(t, guggenheim, nullIsland)

	resp := env.do(t, httptest.NewRequest("GET", "/v1/detect?lat=0&lng=0", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got handler.DetectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != nullIsland.ID || got.DistanceMeters != 0 {
		t.Errorf("expected exact match on null island, got %s at %f", got.ID, got.DistanceMeters)
	}
}

func TestDetect_NotFound(t *testing.T) {
	env := newEnv(t, guggenheim)
	resp := env.do(t, httptest.NewRequest("GET", "/v1/detect?lat=40.4168&lng=-3.7038", nil))
	expectError(t, resp, 404, "not_found")
}

func TestDetect_EmptyStore(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, httptest.NewRequest("GET", "/v1/detect?lat=43.2687&lng=-2.934", nil))
	expectError(t, resp, 404, "not_found")
}

func TestDetect_InvalidCoordinate(t *testing.T) {
	env := newEnv(t, guggenheim)
	for _, q := range []string{"lat=91&lng=0", "lat=0&lng=180.5", "lat=-90.01&lng=-200"} {
		resp := env.do(t, httptest.NewRequest("GET", "/v1/detect?"+q, nil))
		expectError(t, resp, 400, "invalid_coordinate")
	}
}

func TestDetect_BadParams(t *testing.T) {
	env := newEnv(t, guggenheim)
	for _, q := range []string{"", "lat=43.2", "lng=-2.9", "lat=abc&lng=0", "lat=0&lng="} {
		resp := env.do(t, httptest.NewRequest("GET", "/v1/detect?"+q, nil))
		expectError(t, resp, 400, "bad_request")
	}
}

func TestDetect_StoreUnavailable(t *testing.T) {
	env := newEnv(t, guggenheim)
	env.places.listErr = errors.New("connection refused")

	resp := env.do(t, httptest.NewRequest("GET", "/v1/detect?lat=43.2687&lng=-2.934", nil))
	expectError(t, resp, 503, "data_unavailable")
}

// ---- Places ----

func TestListPlaces_Pagination(t *testing.T) {
	places := make([]domain.Place, 5)
	for i := range places {
		places[i] = domain.Place{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Place %d", i)}
	}
	env := newEnv(t, places...)

	resp := env.do(t, httptest.NewRequest("GET", "/v1/places?offset=2&limit=2", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Place     `json:"data"`
		Pagination handler.Pagination `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 5 || result.Pagination.Offset != 2 {
		t.Errorf("unexpected pagination %+v", result.Pagination)
	}
	if len(result.Data) != 2 || result.Data[0].ID != "p2" {
		t.Errorf("unexpected page %+v", result.Data)
	}

	link := resp.Header.Get("Link")
	for _, rel := range []string{`rel="first"`, `rel="prev"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(link, rel) {
			t.Errorf("Link header missing %s: %s", rel, link)
		}
	}
}

func TestListPlaces_EmptyIsArray(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, httptest.NewRequest("GET", "/v1/places", nil))
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", body)
	}
}

func TestGetPlace(t *testing.T) {
	env := newEnv(t, guggenheim)

	resp := env.do(t, httptest.NewRequest("GET", "/v1/places/"+guggenheim.ID, nil))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var p domain.Place
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "Guggenheim" {
		t.Errorf("unexpected place %+v", p)
	}

	resp = env.do(t, httptest.NewRequest("GET", "/v1/places/not-a-uuid", nil))
	expectError(t, resp, 404, "not_found")
}

func TestCreatePlace_RequiresToken(t *testing.T) {
	env := newEnv(t)
	body, ct := placeForm(t, map[string]string{"name": "A", "lat": "1", "lng": "1"}, "a.png", []byte("png"))
	req := httptest.NewRequest("POST", "/v1/places", body)
	req.Header.Set("Content-Type", ct)

	resp := env.do(t, req)
	expectError(t, resp, 401, "unauthorized")
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestCreatePlace_MemberForbidden(t *testing.T) {
	env := newEnv(t)
	if _, err := env.auth.Register(context.Background(), usecases.Credentials{Username: "ana", Password: "correcthorse"}); err != nil {
		t.Fatal(err)
	}
	tok := env.login(t, "ana", "correcthorse")

	body, ct := placeForm(t, map[string]string{"name": "A", "lat": "1", "lng": "1"}, "a.png", []byte("png"))
	req := httptest.NewRequest("POST", "/v1/places", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+tok)

	expectError(t, env.do(t, req), 403, "forbidden")
	if stored, _ := afero.ReadDir(env.fs, "uploads"); len(stored) != 0 {
		t.Error("no image may be stored for a forbidden request")
	}
}

func TestCreatePlace_Admin(t *testing.T) {
	env := newEnv(t)
	tok := env.login(t, adminUser, adminPass)

	body, ct := placeForm(t, map[string]string{
		"name": "Puente Colgante", "description": "Transporter bridge", "lat": "43.3231", "lng": "-3.0170",
	}, "bridge.jpg", []byte("jpegbytes"))
	req := httptest.NewRequest("POST", "/v1/places", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+tok)

	resp := env.do(t, req)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var p domain.Place
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("Location") != "/v1/places/"+p.ID {
		t.Errorf("unexpected Location %q", resp.Header.Get("Location"))
	}
	if !strings.HasPrefix(p.Image.URL, "/uploads/") {
		t.Errorf("unexpected image url %q", p.Image.URL)
	}

	// The new place is immediately detectable.
	resp = env.do(t, httptest.NewRequest("GET", "/v1/detect?lat=43.3231&lng=-3.0170", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("expected registered place to be detected, got %d", resp.StatusCode)
	}
}

func TestUploads_ServedFromStore(t *testing.T) {
	env := newEnv(t)
	ref, err := env.images.Save(context.Background(), "bridge.png", strings.NewReader("pngbytes"))
	if err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, httptest.NewRequest("GET", ref.URL, nil))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for %s, got %d", ref.URL, resp.StatusCode)
	}
	if got := string(readBody(t, resp.Body)); got != "pngbytes" {
		t.Errorf("unexpected body %q", got)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("expected immutable Cache-Control, got %q", cc)
	}
}

func TestUploads_NotFound(t *testing.T) {
	env := newEnv(t)
	if err := afero.WriteFile(env.fs, "secret.txt", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/uploads/missing.jpg", "/uploads/..%2Fsecret.txt"} {
		resp := env.do(t, httptest.NewRequest("GET", path, nil))
		if resp.StatusCode != 404 {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestCreatePlace_InvalidInput(t *testing.T) {
	env := newEnv(t)
	tok := env.login(t, adminUser, adminPass)

	tests := []struct {
		name      string
		fields    map[string]string
		imageName string
		status    int
		code      string
	}{
		{"missing image", map[string]string{"name": "A", "lat": "1", "lng": "1"}, "", 400, "bad_request"},
		{"missing lat", map[string]string{"name": "A", "lng": "1"}, "a.png", 400, "bad_request"},
		{"blank name", map[string]string{"name": "  ", "lat": "1", "lng": "1"}, "a.png", 400, "bad_request"},
		{"latitude out of range", map[string]string{"name": "A", "lat": "95", "lng": "1"}, "a.png", 400, "invalid_coordinate"},
		{"unsupported image", map[string]string{"name": "A", "lat": "1", "lng": "1"}, "a.exe", 400, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := placeForm(t, tt.fields, tt.imageName, []byte("data"))
			req := httptest.NewRequest("POST", "/v1/places", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("Authorization", "Bearer "+tok)
			expectError(t, env.do(t, req), tt.status, tt.code)
		})
	}
	if len(env.places.places) != 0 {
		t.Error("no place may be stored for invalid input")
	}
}

// ---- Auth ----

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuth_RegisterLogin(t *testing.T) {
	env := newEnv(t)

	resp := env.do(t, jsonRequest("POST", "/v1/auth/register", `{"username":"ana","password":"correcthorse"}`))
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var tok handler.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken == "" || tok.TokenType != "Bearer" {
		t.Errorf("unexpected token response %+v", tok)
	}

	resp = env.do(t, jsonRequest("POST", "/v1/auth/register", `{"username":"ana","password":"correcthorse"}`))
	expectError(t, resp, 409, "conflict")

	resp = env.do(t, jsonRequest("POST", "/v1/auth/login", `{"username":"ana","password":"correcthorse"}`))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = env.do(t, jsonRequest("POST", "/v1/auth/login", `{"username":"ana","password":"wrong-password"}`))
	expectError(t, resp, 401, "unauthorized")
}

func TestAuth_RegisterValidation(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, jsonRequest("POST", "/v1/auth/register", `{"username":"ana","password":"short"}`))
	expectError(t, resp, 400, "bad_request")

	resp = env.do(t, jsonRequest("POST", "/v1/auth/register", `not json`))
	expectError(t, resp, 400, "bad_request")
}

// ---- GraphQL ----

func TestGraphQL_DetectAndPlaces(t *testing.T) {
	env := newEnv(t, guggenheim)

	query := `{"query":"{ detect(lat: 43.2688, lng: -2.9341) { distance_m place { id name image { url } } } places { id created_at } }"}`
	resp := env.do(t, jsonRequest("POST", "/graphql", query))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Detect *struct {
				DistanceM float64 `json:"distance_m"`
				Place     struct {
					ID    string `json:"id"`
					Name  string `json:"name"`
					Image struct {
						URL string `json:"url"`
					} `json:"image"`
				} `json:"place"`
			} `json:"detect"`
			Places []struct {
				ID        string `json:"id"`
				CreatedAt string `json:"created_at"`
			} `json:"places"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	if result.Data.Detect == nil || result.Data.Detect.Place.ID != guggenheim.ID {
		t.Fatalf("unexpected detect result %+v", result.Data.Detect)
	}
	if result.Data.Detect.Place.Image.URL != "/uploads/g.jpg" {
		t.Errorf("unexpected image url %q", result.Data.Detect.Place.Image.URL)
	}
	if len(result.Data.Places) != 1 || result.Data.Places[0].CreatedAt != "2024-01-01T00:00:00Z" {
		t.Errorf("unexpected places %+v", result.Data.Places)
	}
}

func TestGraphQL_DetectNothingNearby(t *testing.T) {
	env := newEnv(t, guggenheim)
	resp := env.do(t, jsonRequest("POST", "/graphql", `{"query":"{ detect(lat: 0, lng: 0) { distance_m } }"}`))
	body := readBody(t, resp.Body)
	if !strings.Contains(string(body), `"detect":null`) {
		t.Errorf("expected null detection, got %s", body)
	}
}

// ---- Health ----

func TestHealthAndReady(t *testing.T) {
	env := newEnv(t)

	resp := env.do(t, httptest.NewRequest("GET", "/v1/health", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("health: expected 200, got %d", resp.StatusCode)
	}

	resp = env.do(t, httptest.NewRequest("GET", "/v1/ready", nil))
	if resp.StatusCode != 503 {
		t.Fatalf("ready without database: expected 503, got %d", resp.StatusCode)
	}
}

func TestETag_NotModified(t *testing.T) {
	env := newEnv(t, guggenheim)

	resp := env.do(t, httptest.NewRequest("GET", "/v1/places/"+guggenheim.ID, nil))
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag")
	}

	req := httptest.NewRequest("GET", "/v1/places/"+guggenheim.ID, nil)
	req.Header.Set("If-None-Match", etag)
	resp = env.do(t, req)
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}
