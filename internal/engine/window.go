package engine

import (
	"time"

	"github.com/xela07ax/opswatch/internal/domain"
)

// window — кольцевой буфер фиксированной емкости (arena + head/size).
// Память выделяется один раз при создании, рост структуры исключен.
type window struct {
	buf  []domain.MetricSample
	head int // индекс самой старой записи
	size int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]domain.MetricSample, capacity)}
}

func (w *window) append(s domain.MetricSample) {
	if w.size < len(w.buf) {
		w.buf[(w.head+w.size)%len(w.buf)] = s
		w.size++
		return
	}
	// Буфер полон: затираем самую старую запись
	w.buf[w.head] = s
	w.head = (w.head + 1) % len(w.buf)
}

// trimBefore вытесняет записи старше cutoff. Записи упорядочены по времени
// вставки, поэтому достаточно срезать с головы.
func (w *window) trimBefore(cutoff time.Time) {
	for w.size > 0 && w.buf[w.head].Timestamp.Before(cutoff) {
		w.head = (w.head + 1) % len(w.buf)
		w.size--
	}
}

func (w *window) query(since time.Time) []domain.MetricSample {
	out := make([]domain.MetricSample, 0, w.size)
	for i := 0; i < w.size; i++ {
		s := w.buf[(w.head+i)%len(w.buf)]
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

// WindowStore хранит скользящие окна по имени метрики.
// Не потокобезопасен сам по себе: весь доступ сериализуется мьютексом Engine.
type WindowStore struct {
	capacity  int
	retention map[string]time.Duration // max(window_minutes) по порогам метрики
	fallback  time.Duration            // ретенция для метрик без порогов (event-категории)
	windows   map[string]*window
}

func NewWindowStore(capacity int, fallback time.Duration) *WindowStore {
	if capacity <= 0 {
		capacity = 500
	}
	if fallback <= 0 {
		fallback = time.Hour
	}
	return &WindowStore{
		capacity:  capacity,
		retention: make(map[string]time.Duration),
		fallback:  fallback,
		windows:   make(map[string]*window),
	}
}

// SetRetention задает возрастную границу вытеснения для метрики.
// Вызывается при регистрации порогов (максимальное окно среди правил).
func (s *WindowStore) SetRetention(metric string, d time.Duration) {
	if cur, ok := s.retention[metric]; !ok || d > cur {
		s.retention[metric] = d
	}
}

func (s *WindowStore) maxAge(metric string) time.Duration {
	if d, ok := s.retention[metric]; ok {
		return d
	}
	return s.fallback
}

// Append добавляет сэмпл и лениво вытесняет протухшие записи. O(1) амортизированно.
// Неизвестная метрика просто создает новый пустой буфер.
func (s *WindowStore) Append(sample domain.MetricSample) {
	w, ok := s.windows[sample.Metric]
	if !ok {
		w = newWindow(s.capacity)
		s.windows[sample.Metric] = w
	}
	w.trimBefore(sample.Timestamp.Add(-s.maxAge(sample.Metric)))
	w.append(sample)
}

// Query возвращает сэмплы с timestamp >= since в порядке вставки.
// Возрастное вытеснение происходит на Append: там известно «текущее» время
// (время нового сэмпла), и ретенция метрики отсчитывается от него.
func (s *WindowStore) Query(metric string, since time.Time) []domain.MetricSample {
	w, ok := s.windows[metric]
	if !ok {
		return nil
	}
	return w.query(since)
}

// Len — текущий размер окна метрики (для метрик и тестов)
func (s *WindowStore) Len(metric string) int {
	if w, ok := s.windows[metric]; ok {
		return w.size
	}
	return 0
}
