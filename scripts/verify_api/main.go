package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"chatline/pkg/model"
)

type loginResponse struct {
	Token string       `json:"token"`
	User  model.Sender `json:"user"`
}

func main() {
	apiAddr := "http://localhost:8081"

	// 1. Login
	reqBody, _ := json.Marshal(map[string]string{"uid": "userA", "email": "usera@example.com"})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Token: %s...\n", lr.Token[:10])

	conversationID := model.DMConversationID("userA", "userB")

	// 2. Message history
	log.Printf("Fetching history for %s...", conversationID)
	req, _ := http.NewRequest("GET", apiAddr+"/messages/"+conversationID, nil)
	req.Header.Add("Authorization", "Bearer "+lr.Token)

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("History request failed:", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	log.Printf("History: %s", string(body))

	// 3. Conversation list
	req, _ = http.NewRequest("GET", apiAddr+"/conversations", nil)
	req.Header.Add("Authorization", "Bearer "+lr.Token)

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("Conversations request failed:", err)
	}
	defer resp.Body.Close()

	body, _ = io.ReadAll(resp.Body)
	log.Printf("Conversations: %s", string(body))
}
