package scrape

// Frontier holds the discovered-but-not-yet-fetched pages of one bounded
// crawl. Each crawl owns its own Frontier; nothing is shared across seeds.
type Frontier struct {
	visited map[string]struct{}
	queue   []string
}

// NewFrontier creates a frontier seeded with the start URL
func NewFrontier(seed string) *Frontier {
	return &Frontier{
		visited: make(map[string]struct{}),
		queue:   []string{seed},
	}
}

// Enqueue adds a URL to the pending queue. The queue may grow without bound;
// the walker's page cap bounds the actual fetches.
func (f *Frontier) Enqueue(url string) {
	f.queue = append(f.queue, url)
}

// Next pops the oldest pending URL that has not been visited yet
func (f *Frontier) Next() (string, bool) {
	for len(f.queue) > 0 {
		url := f.queue[0]
		f.queue = f.queue[1:]
		if url == "" {
			continue
		}
		if _, seen := f.visited[url]; seen {
			continue
		}
		return url, true
	}
	return "", false
}

// MarkVisited records a URL as fetched (or attempted)
func (f *Frontier) MarkVisited(url string) {
	f.visited[url] = struct{}{}
}

// VisitedCount returns the number of pages attempted so far
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// Pending returns the number of queued URLs
func (f *Frontier) Pending() int {
	return len(f.queue)
}
