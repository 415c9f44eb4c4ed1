package main

import (
	"log"
	"os"
	"time"

	"travel-booking-server/routes"
	"travel-booking-server/services"
	"travel-booking-server/storage"
	"travel-booking-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	godotenv.Load()
	db := storage.InitializeDB()
	rdb := storage.InitializeRedis()

	gateway := services.NewGatewayClient(services.GatewayConfig{
		BaseURL:   os.Getenv("CHAPA_BASE_URL"),
		SecretKey: os.Getenv("CHAPA_SECRET_KEY"),
		Timeout:   30 * time.Second,
	})
	mailer := services.NewMailjetMailer(
		os.Getenv("MAILJET_API_KEY"),
		os.Getenv("MAILJET_API_SECRET"),
		os.Getenv("MAILJET_FROM_EMAIL"),
		os.Getenv("MAILJET_FROM_NAME"),
	)
	notifier := services.NewNotifier(rdb, mailer)
	notifier.Start()
	defer notifier.Stop()

	ledger := storage.NewLedger(db)
	bookings := services.NewBookingService(ledger, notifier)
	payments := services.NewPaymentService(services.PaymentConfig{
		WebhookSecret: os.Getenv("CHAPA_WEBHOOK_SECRET"),
		CallbackURL:   os.Getenv("PUBLIC_BASE_URL") + "/api/payment/webhook",
		ReturnURL:     os.Getenv("PUBLIC_BASE_URL"),
		Currency:      os.Getenv("PAYMENT_CURRENCY"),
	}, ledger, gateway, bookings, notifier)

	reconciler := services.NewReconciler(ledger, payments, 5*time.Minute, 24*time.Hour)
	reconciler.Start()
	defer reconciler.Stop()

	routes.Configure(bookings, payments)

	app := iris.New()
	app.Validator = validator.New()

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	listingAPI := app.Party("/api/listing")
	{
		listingAPI.Get("/", routes.ListListings)
		listingAPI.Get("/{id}", routes.GetListing)
		listingAPI.Get("/{id}/reviews", routes.ListListingReviews)
		listingAPI.Post("/", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.CreateListing)
		listingAPI.Patch("/{id}/availability", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.SetListingAvailability)
	}

	bookingAPI := app.Party("/api/booking", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		bookingAPI.Post("/", routes.CreateBooking)
		bookingAPI.Get("/", routes.GetMyBookings)
		bookingAPI.Get("/{id}", routes.GetBooking)
		bookingAPI.Post("/{id}/cancel", routes.CancelBooking)
		bookingAPI.Post("/{id}/confirm", routes.ConfirmBooking)
		bookingAPI.Post("/{id}/complete", routes.CompleteBooking)
	}

	paymentAPI := app.Party("/api/payment", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		paymentAPI.Post("/initialize", routes.InitializePayment)
		paymentAPI.Post("/verify", routes.VerifyPayment)
		paymentAPI.Post("/{id}/retry", routes.RetryPayment)
		paymentAPI.Get("/{id}", routes.GetPayment)
	}

	// Gateway callbacks carry their own signature; no JWT here.
	app.Post("/api/payment/webhook", routes.PaymentWebhook)

	reviewAPI := app.Party("/api/review", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		reviewAPI.Post("/", routes.CreateReview)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	log.Println("Starting server on port " + port)
	app.Listen(":" + port)
}
