package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"procco/auth"
	"procco/db"
	"procco/match"
	"procco/offer"
	"procco/request"
	"procco/view"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	server := &Server{
		authService:    auth.NewService(auth.NewRepository(pool), jwtSecret),
		requestService: request.NewService(pool, request.NewRepository(pool)),
		offerService:   offer.NewService(pool, offer.NewRepository(pool)),
		matchService:   match.NewService(pool, nil),
		viewService:    view.NewService(view.NewRepository(pool)),
	}

	addr := ":" + os.Getenv("PORT")
	if addr == ":" {
		addr = ":8080"
	}

	log.Printf("api listening on %s", addr)
	if err := http.ListenAndServe(addr, server.routes()); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
