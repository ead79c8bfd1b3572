package parser

import (
	"runtime"
	"sync"
)

// pageJob is one page handed to a detection worker
type pageJob struct {
	index int
	page  pageLayout
}

// detectPages runs strategy over every page on a bounded worker pool.
// Tables come back in page order regardless of which worker finished first.
func (p *PDFParser) detectPages(strategy tableStrategy, pages []pageLayout) []RawTable {
	workers := p.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(pages) {
		workers = len(pages)
	}

	// Each worker writes only to its own page slot.
	perPage := make([][]RawTable, len(pages))

	if workers <= 1 {
		for i, page := range pages {
			perPage[i] = p.detect(strategy, page)
		}
		return flattenTables(perPage)
	}

	jobs := make(chan pageJob, workers*2)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				perPage[job.index] = p.detect(strategy, job.page)
			}
		}()
	}

	for i, page := range pages {
		jobs <- pageJob{index: i, page: page}
	}
	close(jobs)
	wg.Wait()

	return flattenTables(perPage)
}

func flattenTables(perPage [][]RawTable) []RawTable {
	var tables []RawTable
	for _, pageTables := range perPage {
		tables = append(tables, pageTables...)
	}
	return tables
}
