package progress

import "io"

// Reader wraps an io.Reader and reports cumulative bytes through a callback
// every reportInterval bytes, so long copies across storage boundaries stay
// observable without logging every chunk.
type Reader struct {
	reader         io.Reader
	total          int64
	onProgress     func(written, total int64)
	totalRead      int64
	sinceReport    int64
	reportInterval int64
}

func NewReader(r io.Reader, total, interval int64, cb func(written, total int64)) *Reader {
	return &Reader{
		reader:         r,
		total:          total,
		onProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.sinceReport += int64(n)

		if pr.sinceReport >= pr.reportInterval && pr.onProgress != nil {
			pr.onProgress(pr.totalRead, pr.total)
			pr.sinceReport = 0
		}
	}

	return n, err
}
