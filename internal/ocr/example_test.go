package ocr_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"balloon/internal/harvest"
	"balloon/internal/ocr"
)

// Example demonstrates recognizing a scanned drawing page.
func Example() {
	// Credentials come from GOOGLE_CREDENTIALS or GOOGLE_APPLICATION_CREDENTIALS.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recognizer, err := ocr.New(ctx, ocr.Config{Provider: ocr.ProviderVision})
	if err != nil {
		log.Fatalf("Failed to create recognizer: %v", err)
	}
	defer recognizer.Close()

	img, err := os.ReadFile("drawing_page1.png")
	if err != nil {
		log.Fatalf("Failed to read image: %v", err)
	}

	result, err := recognizer.Recognize(ctx, img)
	if err != nil {
		log.Fatalf("Failed to recognize page: %v", err)
	}

	fmt.Printf("Recognized %d words (confidence %.2f)\n", len(result.Words), result.Confidence)
	for _, tok := range harvest.Cluster(ocr.ResultTokens(result)) {
		fmt.Println(tok.Text)
	}
}

// ExampleResultTokens shows how recognized text without word boxes becomes tokens.
func ExampleResultTokens() {
	result := &ocr.Result{Text: "⌀.500±.005\nR.125\n", Confidence: 0.87}
	for _, tok := range ocr.ResultTokens(result) {
		fmt.Printf("%s %.2f %s\n", tok.Text, tok.Confidence, tok.Source)
	}
	// Output:
	// ⌀.500±.005 0.87 raster
	// R.125 0.87 raster
}
