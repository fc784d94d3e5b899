package request

// Uploader streams a request body to the transport. Size reports the
// total number of bytes that will be uploaded; Read copies up to
// len(dst) bytes starting from wherever the previous Read left off.
// Implementations must be safe to call repeatedly from the engine
// goroutine.
type Uploader interface {
	Size() int64
	Read(dst []byte) (int, error)
}

// Downloader receives a response body one chunk at a time. Write must
// consume exactly len(src) bytes; returning fewer is a protocol error
// the engine treats as a write failure.
type Downloader interface {
	Write(src []byte) (int, error)
}

// Progressor is kept informed of transfer progress. Update is called
// from the engine goroutine with cumulative byte counts and returns a
// fraction in [0,1] (the engine clamps whatever is returned). Returning
// a non-nil error cancels the request.
type Progressor interface {
	Update(downloadedNow, downloadedTotal, uploadedNow, uploadedTotal int64) (float64, error)
}

// defaultUploader streams from the owning state's body buffer, under
// the state's own mutex, advancing a cursor on each Read.
type defaultUploader struct {
	s    *State
	read int64
}

func newDefaultUploader(s *State) *defaultUploader {
	return &defaultUploader{s: s}
}

func (u *defaultUploader) Size() int64 {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return int64(len(u.s.cfg.Body))
}

func (u *defaultUploader) Read(dst []byte) (int, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	remaining := int64(len(u.s.cfg.Body)) - u.read
	if remaining <= 0 {
		return 0, nil
	}

	n := int64(len(dst))
	if n > remaining {
		n = remaining
	}

	copy(dst[:n], u.s.cfg.Body[u.read:u.read+n])
	u.read += n

	return int(n), nil
}

// defaultDownloader appends every write to the owning state's response
// body buffer, under the state's own mutex.
type defaultDownloader struct {
	s *State
}

func newDefaultDownloader(s *State) *defaultDownloader {
	return &defaultDownloader{s: s}
}

func (d *defaultDownloader) Write(src []byte) (int, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.responseBody = append(d.s.responseBody, src...)
	return len(src), nil
}

// defaultProgressor reports the clamped fraction of combined
// upload+download bytes transferred, or 0 when the denominator is 0.
type defaultProgressor struct{}

func newDefaultProgressor() *defaultProgressor {
	return &defaultProgressor{}
}

func (*defaultProgressor) Update(dNow, dTotal, uNow, uTotal int64) (float64, error) {
	denom := dTotal + uTotal
	if denom <= 0 {
		return 0, nil
	}
	return clampFraction(float64(dNow+uNow) / float64(denom)), nil
}

func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
