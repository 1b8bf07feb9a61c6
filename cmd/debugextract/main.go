package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hyperifyio/bunkmate/internal/extract"
	"github.com/hyperifyio/bunkmate/internal/fetch"
	"github.com/hyperifyio/bunkmate/internal/message"
	"github.com/hyperifyio/bunkmate/internal/relevance"
	"github.com/hyperifyio/bunkmate/internal/source"
)

// debugextract runs every strategy on its own against one page and prints
// what each would have produced.
func main() {
	target := "attendance.html"
	if len(os.Args) > 1 {
		target = os.Args[1]
	}
	var src source.Source = source.File{Path: target}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		src = source.URL{Client: &fetch.Client{UserAgent: "debugextract/1.0", MaxAttempts: 2, PerRequestTimeout: 20 * time.Second}, URL: target}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	doc, err := src.Load(ctx)
	if err != nil {
		fmt.Println("err:", err)
		os.Exit(1)
	}

	info := message.PageInfoOf(doc, relevance.Default())
	fmt.Printf("page: %s (%s)\n", info.Title, info.URL)
	fmt.Printf("attendance page: %v  tables: %d  keyword: %v  content: %v\n", info.IsAttendancePage, info.TableCount, info.KeywordHit, info.HasContent)
	for _, s := range relevance.Default().Evaluate(doc).Fired {
		fmt.Println("  signal:", s)
	}

	fmt.Println()
	for i, s := range extract.Default().Strategies {
		rec := extract.New(s).Extract(doc)
		fmt.Printf("%d. %-11s %-13s", i+1, s.Method(), rec.Outcome)
		if rec.Found {
			fmt.Printf(" %d/%d", rec.AttendedClasses, rec.TotalClasses)
			if rec.Swapped {
				fmt.Print(" (swapped)")
			}
		}
		fmt.Println()
		for _, d := range rec.Diagnostics {
			fmt.Println("     ", d)
		}
	}

	rec := extract.Default().Extract(doc)
	fmt.Printf("\ncascade: %s via %q", rec.Outcome, rec.Method)
	if rec.Found {
		fmt.Printf(" %d/%d", rec.AttendedClasses, rec.TotalClasses)
	}
	fmt.Println()
}
