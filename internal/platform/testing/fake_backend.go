package testing

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// FakeUser mirrors the backend user serializer.
type FakeUser struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FakeRecord mirrors the equipment record serializer.
type FakeRecord struct {
	ID            int     `json:"id"`
	EquipmentName string  `json:"equipment_name"`
	EquipmentType string  `json:"equipment_type"`
	Flowrate      float64 `json:"flowrate"`
	Pressure      float64 `json:"pressure"`
	Temperature   float64 `json:"temperature"`
}

// FakeDataset mirrors the dataset serializer.
type FakeDataset struct {
	ID             int            `json:"id"`
	Filename       string         `json:"filename"`
	UploadedAt     time.Time      `json:"uploaded_at"`
	Username       string         `json:"username"`
	TotalCount     int            `json:"total_count"`
	AvgFlowrate    float64        `json:"avg_flowrate"`
	AvgPressure    float64        `json:"avg_pressure"`
	AvgTemperature float64        `json:"avg_temperature"`
	EquipmentTypes map[string]int `json:"equipment_types"`
	Records        []FakeRecord   `json:"records,omitempty"`
}

// SeenRequest is what the backend observed for one incoming request.
type SeenRequest struct {
	Method        string
	Path          string
	Authorization []string
	RequestID     string
	ContentType   string
}

type fakeAccount struct {
	user     FakeUser
	password string
}

// FakeBackend serves the chemviz REST contract over httptest. Access
// tokens are signed JWTs that stay valid until ExpireAccessTokens is
// called.
type FakeBackend struct {
	Server  *httptest.Server
	BaseURL string

	secret []byte

	mu            sync.Mutex
	accounts      map[string]*fakeAccount
	datasets      map[int]*FakeDataset
	owners        map[int]string
	validAccess   map[string]bool
	nextUserID    int
	nextDatasetID int
	nextRecordID  int

	failRefresh  bool
	rejectAccess bool
	refreshDelay time.Duration
	refreshCalls int
	refreshAuth  []string
	seen         []SeenRequest
	counts       map[string]int
}

// NewFakeBackend starts the backend and stops it when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &FakeBackend{
		secret:        []byte("fake-backend-" + uuid.NewString()),
		accounts:      make(map[string]*fakeAccount),
		datasets:      make(map[int]*FakeDataset),
		owners:        make(map[int]string),
		validAccess:   make(map[string]bool),
		counts:        make(map[string]int),
		nextUserID:    1,
		nextDatasetID: 1,
		nextRecordID:  1,
	}

	r := gin.New()
	r.Use(b.record)
	api := r.Group("/api")
	{
		api.POST("/auth/register/", b.register)
		api.POST("/auth/login/", b.login)
		api.POST("/auth/token/refresh/", b.refresh)

		authed := api.Group("", b.authenticate)
		authed.GET("/auth/profile/", b.profile)
		authed.GET("/datasets/", b.listDatasets)
		authed.POST("/datasets/upload/", b.upload)
		authed.GET("/datasets/:id/", b.datasetDetail)
		authed.DELETE("/datasets/:id/delete/", b.deleteDataset)
		authed.GET("/datasets/:id/report/", b.report)
	}

	b.Server = httptest.NewServer(r)
	b.BaseURL = b.Server.URL + "/api"
	t.Cleanup(b.Server.Close)
	return b
}

// AddUser registers an account directly and returns it.
func (b *FakeBackend) AddUser(username, password string) FakeUser {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(username, username+"@example.com", password, "", "")
}

// IssueTokens returns a fresh access/refresh pair for an existing user.
func (b *FakeBackend) IssueTokens(username string) (access, refresh string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts[username]
	if acc == nil {
		return "", ""
	}
	return b.issueAccessLocked(acc.user), b.sign(acc.user, "refresh", 24*time.Hour)
}

// ExpireAccessTokens invalidates every access token issued so far.
func (b *FakeBackend) ExpireAccessTokens() {
	b.mu.Lock()
	b.validAccess = make(map[string]bool)
	b.mu.Unlock()
}

// SetFailRefresh makes the refresh endpoint answer 401.
func (b *FakeBackend) SetFailRefresh(fail bool) {
	b.mu.Lock()
	b.failRefresh = fail
	b.mu.Unlock()
}

// SetRejectAccess makes every authenticated route answer 401, including
// for freshly refreshed tokens.
func (b *FakeBackend) SetRejectAccess(reject bool) {
	b.mu.Lock()
	b.rejectAccess = reject
	b.mu.Unlock()
}

// SetRefreshDelay holds refresh responses for d.
func (b *FakeBackend) SetRefreshDelay(d time.Duration) {
	b.mu.Lock()
	b.refreshDelay = d
	b.mu.Unlock()
}

// RefreshCalls counts requests to the refresh endpoint.
func (b *FakeBackend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// RefreshAuthorization returns the Authorization values seen on refresh
// requests, one entry per call.
func (b *FakeBackend) RefreshAuthorization() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.refreshAuth...)
}

// Count returns how many times "METHOD /path" was requested.
func (b *FakeBackend) Count(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[method+" "+path]
}

// Seen returns every request observed, in arrival order.
func (b *FakeBackend) Seen() []SeenRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SeenRequest(nil), b.seen...)
}

// SeedDataset stores a dataset for username and returns its id.
func (b *FakeBackend) SeedDataset(username string, ds FakeDataset) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ds.ID = b.nextDatasetID
	b.nextDatasetID++
	if ds.UploadedAt.IsZero() {
		ds.UploadedAt = time.Now().UTC()
	}
	ds.Username = username
	for i := range ds.Records {
		ds.Records[i].ID = b.nextRecordID
		b.nextRecordID++
	}
	b.datasets[ds.ID] = &ds
	b.owners[ds.ID] = username
	return ds.ID
}

func (b *FakeBackend) record(c *gin.Context) {
	b.mu.Lock()
	b.seen = append(b.seen, SeenRequest{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		Authorization: append([]string(nil), c.Request.Header.Values("Authorization")...),
		RequestID:     c.GetHeader("X-Request-ID"),
		ContentType:   c.GetHeader("Content-Type"),
	})
	b.counts[c.Request.Method+" "+c.Request.URL.Path]++
	b.mu.Unlock()
	c.Next()
}

func (b *FakeBackend) addUserLocked(username, email, password, first, last string) FakeUser {
	u := FakeUser{ID: b.nextUserID, Username: username, Email: email, FirstName: first, LastName: last}
	b.nextUserID++
	b.accounts[username] = &fakeAccount{user: u, password: password}
	return u
}

func (b *FakeBackend) sign(u FakeUser, tokenType string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"token_type": tokenType,
		"user_id":    u.ID,
		"username":   u.Username,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		panic(fmt.Sprintf("sign token: %v", err))
	}
	return signed
}

func (b *FakeBackend) issueAccessLocked(u FakeUser) string {
	token := b.sign(u, "access", 5*time.Minute)
	b.validAccess[token] = true
	return token
}

func (b *FakeBackend) parse(token, tokenType string) (jwt.MapClaims, bool) {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || claims["token_type"] != tokenType {
		return nil, false
	}
	return claims, true
}

func (b *FakeBackend) tokenResponse(u FakeUser) gin.H {
	return gin.H{
		"user":    u,
		"access":  b.issueAccessLocked(u),
		"refresh": b.sign(u, "refresh", 24*time.Hour),
	}
}

func (b *FakeBackend) register(c *gin.Context) {
	var body struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	errs := gin.H{}
	if body.Username == "" {
		errs["username"] = []string{"This field is required."}
	} else if _, exists := b.accounts[body.Username]; exists {
		errs["username"] = []string{"A user with that username already exists."}
	}
	if body.Password == "" {
		errs["password"] = []string{"This field is required."}
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errs)
		return
	}

	u := b.addUserLocked(body.Username, body.Email, body.Password, body.FirstName, body.LastName)
	c.JSON(http.StatusCreated, b.tokenResponse(u))
}

func (b *FakeBackend) login(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = c.ShouldBindJSON(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	var acc *fakeAccount
	if body.Email != "" {
		for _, candidate := range b.accounts {
			if candidate.user.Email == body.Email {
				acc = candidate
				break
			}
		}
	} else {
		acc = b.accounts[body.Username]
	}
	if acc == nil || acc.password != body.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, b.tokenResponse(acc.user))
}

func (b *FakeBackend) refresh(c *gin.Context) {
	b.mu.Lock()
	b.refreshCalls++
	b.refreshAuth = append(b.refreshAuth, c.GetHeader("Authorization"))
	delay := b.refreshDelay
	fail := b.failRefresh
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Refresh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"refresh": []string{"This field is required."}})
		return
	}
	claims, ok := b.parse(body.Refresh, "refresh")
	if fail || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	username, _ := claims["username"].(string)
	acc := b.accounts[username]
	if acc == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found", "code": "user_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": b.issueAccessLocked(acc.user)})
}

func (b *FakeBackend) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")

	b.mu.Lock()
	valid := found && b.validAccess[token] && !b.rejectAccess
	b.mu.Unlock()

	var claims jwt.MapClaims
	if valid {
		claims, valid = b.parse(token, "access")
	}
	if !valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"detail": "Given token not valid for any token type",
			"code":   "token_not_valid",
		})
		return
	}
	username, _ := claims["username"].(string)
	c.Set("username", username)
	c.Next()
}

func (b *FakeBackend) profile(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts[c.GetString("username")]
	if acc == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	c.JSON(http.StatusOK, acc.user)
}

func (b *FakeBackend) listDatasets(c *gin.Context) {
	username := c.GetString("username")
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]FakeDataset, 0)
	for id, ds := range b.datasets {
		if b.owners[id] != username {
			continue
		}
		summary := *ds
		summary.Records = nil
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	c.JSON(http.StatusOK, out)
}

func (b *FakeBackend) ownedDataset(c *gin.Context) (*FakeDataset, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dataset not found"})
		return nil, false
	}
	ds, ok := b.datasets[id]
	if !ok || b.owners[id] != c.GetString("username") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dataset not found"})
		return nil, false
	}
	return ds, true
}

func (b *FakeBackend) datasetDetail(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ds, ok := b.ownedDataset(c); ok {
		c.JSON(http.StatusOK, ds)
	}
}

func (b *FakeBackend) deleteDataset(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ds, ok := b.ownedDataset(c); ok {
		delete(b.datasets, ds.ID)
		delete(b.owners, ds.ID)
		c.JSON(http.StatusOK, gin.H{"message": "Dataset deleted successfully"})
	}
}

func (b *FakeBackend) report(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ds, ok := b.ownedDataset(c)
	if !ok {
		return
	}
	name := fmt.Sprintf("report_%s_%s.pdf", ds.Filename, time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/pdf", []byte("%PDF-1.4\n% chemviz report "+ds.Filename+"\n%%EOF\n"))
}

func (b *FakeBackend) upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	if !strings.HasSuffix(header.Filename, ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be a CSV"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	ds, err := summarizeCSV(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error processing file: " + err.Error()})
		return
	}
	ds.Filename = header.Filename

	id := b.SeedDataset(c.GetString("username"), *ds)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.trimLocked(c.GetString("username"), 5)
	c.JSON(http.StatusCreated, b.datasets[id])
}

// trimLocked keeps only the newest keep datasets of username.
func (b *FakeBackend) trimLocked(username string, keep int) {
	var ids []int
	for id, owner := range b.owners {
		if owner == username {
			ids = append(ids, id)
		}
	}
	if len(ids) <= keep {
		return
	}
	sort.Ints(ids)
	for _, id := range ids[:len(ids)-keep] {
		delete(b.datasets, id)
		delete(b.owners, id)
	}
}

var requiredColumns = []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}

func summarizeCSV(r io.Reader) (*FakeDataset, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("CSV must contain columns: %s", strings.Join(requiredColumns, ", "))
		}
	}

	ds := &FakeDataset{EquipmentTypes: map[string]int{}}
	var flow, pressure, temp float64
	for _, row := range rows[1:] {
		rec := FakeRecord{
			EquipmentName: row[index["Equipment Name"]],
			EquipmentType: row[index["Type"]],
		}
		if rec.Flowrate, err = strconv.ParseFloat(row[index["Flowrate"]], 64); err != nil {
			return nil, err
		}
		if rec.Pressure, err = strconv.ParseFloat(row[index["Pressure"]], 64); err != nil {
			return nil, err
		}
		if rec.Temperature, err = strconv.ParseFloat(row[index["Temperature"]], 64); err != nil {
			return nil, err
		}
		flow += rec.Flowrate
		pressure += rec.Pressure
		temp += rec.Temperature
		ds.EquipmentTypes[rec.EquipmentType]++
		ds.Records = append(ds.Records, rec)
	}

	ds.TotalCount = len(ds.Records)
	if ds.TotalCount > 0 {
		n := float64(ds.TotalCount)
		ds.AvgFlowrate = round2(flow / n)
		ds.AvgPressure = round2(pressure / n)
		ds.AvgTemperature = round2(temp / n)
	}
	return ds, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
