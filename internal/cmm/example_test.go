package cmm_test

import (
	"fmt"
	"log"

	"balloon/internal/cmm"
)

func ExampleParser_ParseBytes() {
	report := "Feature=5,Nominal=0.500,Actual=0.505,Deviation=0.005,Status=FAIL\n" +
		"Feature=6,Nominal=0.250,Actual=0.251,Plus Tol=0.002,Minus Tol=0.002\n"

	result, err := cmm.NewParser().ParseBytes([]byte(report), "report.csv")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(result.Format, result.Encoding)
	for _, r := range result.Records {
		fmt.Printf("%s actual=%.3f status=%s (%s)\n", r.Label, *r.Actual, r.Status, r.StatusSource)
	}
	// Output:
	// csv utf-8
	// 5 actual=0.505 status=FAIL (report)
	// 6 actual=0.251 status=PASS (computed)
}
