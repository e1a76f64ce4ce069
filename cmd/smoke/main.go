// Command smoke exercises a running deployment end to end: it
// registers a throwaway identity, logs in, calls a protected route
// through the edge gate, and refreshes the access token. Exits
// non-zero on the first broken step.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func main() {
	log.SetFlags(0)

	edgeURL := os.Getenv("SMOKE_EDGE_URL")
	if edgeURL == "" {
		edgeURL = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 10 * time.Second}
	username := fmt.Sprintf("smoke-%d", rand.New(rand.NewSource(time.Now().UnixNano())).Int31())
	password := "smoke-password-" + username

	// Self-registration through the edge.
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := client.Post(edgeURL+"/v1/identities", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}

	// Login.
	body, _ = json.Marshal(map[string]string{"username": username, "password": password})
	resp, err = client.Post(edgeURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err = json.NewDecoder(resp.Body).Decode(&pair)
	resp.Body.Close()
	if err != nil {
		log.Fatalf("login: decode: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		log.Fatal("login: missing tokens in response")
	}

	// Protected call with the access token.
	req, _ := http.NewRequest(http.MethodGet, edgeURL+"/v1/items", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	resp, err = client.Do(req)
	if err != nil {
		log.Fatalf("list items: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("list items: expected 200, got %d", resp.StatusCode)
	}

	// A refresh token must not pass the same gate.
	req, _ = http.NewRequest(http.MethodGet, edgeURL+"/v1/items", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	resp, err = client.Do(req)
	if err != nil {
		log.Fatalf("list items with refresh token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		log.Fatalf("refresh token at protected route: expected 403, got %d", resp.StatusCode)
	}

	// Mint a fresh access token.
	resp, err = client.Get(edgeURL + "/refresh/" + pair.RefreshToken)
	if err != nil {
		log.Fatalf("refresh: %v", err)
	}
	var minted struct {
		AccessToken string `json:"access_token"`
	}
	err = json.NewDecoder(resp.Body).Decode(&minted)
	resp.Body.Close()
	if err != nil || minted.AccessToken == "" {
		log.Fatalf("refresh: bad response (err=%v)", err)
	}

	req, _ = http.NewRequest(http.MethodGet, edgeURL+"/v1/items", nil)
	req.Header.Set("Authorization", "Bearer "+minted.AccessToken)
	resp, err = client.Do(req)
	if err != nil {
		log.Fatalf("list items with refreshed token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("refreshed token: expected 200, got %d", resp.StatusCode)
	}

	fmt.Printf("smoke ok: %s registered, logged in, authorized, refreshed\n", username)
}
