package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/reelhouse/backend/internal/api"
	"github.com/reelhouse/backend/internal/auth"
	"github.com/reelhouse/backend/internal/models"
)

func TestAuthHandlerRegister(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, http.MethodPost, "/register",
		map[string]string{"name": "ada", "password": "s3cret", "dob": "1990-05-17"},
		formFile{field: "profilePicture", filename: "me.PNG", content: "png-bytes"},
	)
	rec := env.do(req, "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d (%s)", http.StatusCreated, rec.Code, rec.Body.String())
	}
	result := decodeBody[api.Result](t, rec)
	if !result.Success {
		t.Fatalf("expected success result, got %+v", result)
	}

	stored, err := env.users.FindByName(context.Background(), "ada")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if stored.Role != auth.RoleUser {
		t.Fatalf("expected role user, got %q", stored.Role)
	}
	if auth.CheckPassword(stored.PasswordHash, "s3cret") != nil {
		t.Fatal("stored password is not a hash of the submitted one")
	}
	if stored.ProfilePicture != "profilePicture-1709294400000.png" {
		t.Fatalf("unexpected picture name %q", stored.ProfilePicture)
	}
	if !env.exists(t, env.media.ProfilePictures, stored.ProfilePicture) {
		t.Fatal("expected uploaded picture to be stored")
	}
}

func TestAuthHandlerRegisterDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"name": {"bob"}, "password": {"pw"}, "dob": {"2001-02-03"}}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := env.do(req, ""); rec.Code != http.StatusCreated {
		t.Fatalf("expected urlencoded registration to succeed, got %d", rec.Code)
	}
	stored, _ := env.users.FindByName(context.Background(), "bob")
	if stored.ProfilePicture != models.DefaultUserPicture {
		t.Fatalf("expected default picture, got %q", stored.ProfilePicture)
	}

	rec := env.do(multipartRequest(t, http.MethodPost, "/register",
		map[string]string{"name": "bob", "password": "other", "dob": "2001-02-03"},
		formFile{field: "profilePicture", filename: "dup.png", content: "png"},
	), "")
	expectFailure(t, rec, http.StatusConflict, api.KindConflict)
	if got := env.reaper.names(); len(got) != 1 {
		t.Fatalf("expected the rejected picture to be reaped, got %v", got)
	}

	rec = env.do(multipartRequest(t, http.MethodPost, "/register", map[string]string{"name": "carol"}), "")
	expectFailure(t, rec, http.StatusBadRequest, api.KindBadRequest)

	rec = env.do(multipartRequest(t, http.MethodPost, "/register",
		map[string]string{"name": "dave", "password": "pw"}), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected registration without dob to succeed, got %d (body %q)", rec.Code, rec.Body.String())
	}
	if dave, _ := env.users.FindByName(context.Background(), "dave"); dave.DOB != nil {
		t.Fatalf("expected no dob, got %v", dave.DOB)
	}

	rec = env.do(multipartRequest(t, http.MethodPost, "/register",
		map[string]string{"name": "carol", "password": "pw", "dob": "17/05/1990"}), "")
	expectFailure(t, rec, http.StatusBadRequest, api.KindBadRequest)
}

func TestAuthHandlerLogin(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "ada", "password123", auth.RoleAdmin)

	req := multipartRequest(t, http.MethodPost, "/login", map[string]string{"name": "ada", "password": "password123"})
	rec := env.do(req, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[sessionResponse](t, rec)
	if !resp.Success || resp.Token == "" {
		t.Fatalf("expected a token, got %+v", resp)
	}
	if resp.UserRole != auth.RoleAdmin || resp.UserName != "ada" || resp.UserProfilePic != user.ProfilePicture {
		t.Fatalf("unexpected session payload %+v", resp)
	}

	identity, err := env.issuer.Verify(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if identity.ID != user.ID || identity.Role != auth.RoleAdmin {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestAuthHandlerLoginJSONAndFailures(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "ada", "password123", auth.RoleUser)

	jsonLogin := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return env.do(req, "")
	}

	if rec := jsonLogin(`{"name":"ada","password":"password123"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected JSON login to succeed, got %d", rec.Code)
	}

	expectFailure(t, jsonLogin(`{"name":"ada","password":"wrong"}`), http.StatusUnauthorized, api.KindInvalidCredentials)
	expectFailure(t, jsonLogin(`{"name":"nobody","password":"password123"}`), http.StatusUnauthorized, api.KindInvalidCredentials)
	expectFailure(t, jsonLogin(`{"name":"ada"}`), http.StatusBadRequest, api.KindBadRequest)
	expectFailure(t, jsonLogin(`{not json`), http.StatusBadRequest, api.KindBadRequest)
}

func TestAuthHandlerUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "ada", "password123", auth.RoleUser)
	user.ProfilePicture = "profilePicture-1.png"
	if err := env.users.Update(context.Background(), user); err != nil {
		t.Fatalf("seed picture: %v", err)
	}
	token := env.tokenFor(t, user)

	req := multipartRequest(t, http.MethodPut, "/update-profile",
		map[string]string{"name": "ada lovelace", "password": "n3w", "dob": "1815-12-10"},
		formFile{field: "newProfilePicture", filename: "new.jpg", content: "jpeg"},
	)
	rec := env.do(req, token)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[sessionResponse](t, rec)
	if resp.UserName != "ada lovelace" || !strings.HasPrefix(resp.UserProfilePic, "newProfilePicture-") {
		t.Fatalf("unexpected profile payload %+v", resp)
	}

	identity, err := env.issuer.Verify(resp.Token)
	if err != nil {
		t.Fatalf("reissued token does not verify: %v", err)
	}
	if identity.Name != "ada lovelace" || identity.ProfilePicture != resp.UserProfilePic {
		t.Fatalf("reissued token carries stale claims: %+v", identity)
	}

	stored, _ := env.users.FindByID(context.Background(), user.ID)
	if auth.CheckPassword(stored.PasswordHash, "n3w") != nil {
		t.Fatal("expected password to be rotated")
	}
	if got := env.reaper.names(); len(got) != 1 || got[0] != "profilePicture-1.png" {
		t.Fatalf("expected old picture to be reaped, got %v", got)
	}
}

func TestAuthHandlerUpdateProfileFailures(t *testing.T) {
	env := newTestEnv(t)
	ada := env.addUser(t, "ada", "pw", auth.RoleUser)
	env.addUser(t, "bob", "pw", auth.RoleUser)
	token := env.tokenFor(t, ada)

	rec := env.do(multipartRequest(t, http.MethodPut, "/update-profile", map[string]string{"name": "bob"}), token)
	expectFailure(t, rec, http.StatusConflict, api.KindConflict)

	rec = env.do(multipartRequest(t, http.MethodPut, "/update-profile", map[string]string{"name": "x"}), "")
	expectFailure(t, rec, http.StatusUnauthorized, api.KindUnauthenticated)

	rec = env.do(multipartRequest(t, http.MethodPut, "/update-profile", map[string]string{"name": "x"}), "garbage")
	expectFailure(t, rec, http.StatusForbidden, api.KindTokenInvalid)

	ghost := env.tokenFor(t, models.User{ID: "ghost", Name: "ghost", Role: auth.RoleUser})
	rec = env.do(multipartRequest(t, http.MethodPut, "/update-profile", nil,
		formFile{field: "newProfilePicture", filename: "p.png", content: "png"},
	), ghost)
	expectFailure(t, rec, http.StatusNotFound, api.KindNotFound)
	if got := env.reaper.names(); len(got) != 1 {
		t.Fatalf("expected orphaned upload to be reaped, got %v", got)
	}

	env.users.updateErr = errors.New("database down")
	rec = env.do(multipartRequest(t, http.MethodPut, "/update-profile", map[string]string{"dob": "1990-01-02"}), token)
	expectFailure(t, rec, http.StatusInternalServerError, api.KindInternal)
}

func TestAuthHandlerDefaultPictureNeverReaped(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "ada", "pw", auth.RoleUser)

	rec := env.do(multipartRequest(t, http.MethodPut, "/update-profile", nil,
		formFile{field: "newProfilePicture", filename: "p.png", content: "png"},
	), env.tokenFor(t, user))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := env.reaper.names(); len(got) != 0 {
		t.Fatalf("default picture must not be reaped, got %v", got)
	}
}
