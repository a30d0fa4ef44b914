package main

import (
	"errors"
	"log"
	"time"

	"github.com/mainamwangi/soko_chat/database"
	"github.com/mainamwangi/soko_chat/handlers"
	"github.com/mainamwangi/soko_chat/jobs"
	"github.com/mainamwangi/soko_chat/routes"
	"github.com/mainamwangi/soko_chat/services"
	"github.com/mainamwangi/soko_chat/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedDemo()

	hub := websocket.NewHub()

	messageLog := services.NewMessageLog(database.DB)
	directory := services.NewUserDirectory(database.DB)
	listings := services.NewListingDirectory(database.DB)
	resolver := services.NewConversationResolver(messageLog)
	aggregator := services.NewThreadAggregator(messageLog, directory, listings)
	reconciler := services.NewReadReconciler(messageLog, hub)
	messaging := services.NewMessagingService(messageLog, resolver, aggregator, reconciler, directory, hub)

	handlers.InitMessaging(messaging, hub)
	jobs.InitHubJobs(hub)

	c := cron.New()
	c.AddFunc("* * * * *", jobs.SweepStalledSubscriptions)
	go c.Start()
	log.Println("✅ Cron job for hub sweep scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Soko Chat",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
			if services.IsValidation(err) {
				code = fiber.StatusBadRequest
			}
			if errors.Is(err, services.ErrConversationNotFound) || errors.Is(err, services.ErrNotParticipant) {
				code = fiber.StatusNotFound
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Africa/Nairobi",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Soko Chat API",
		})
	})

	routes.MessagingRoutes(app)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	err := app.Listen(":8080")
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
