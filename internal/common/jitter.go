package common

import (
	"math/rand"
	"sync"
	"time"
)

// Jitter вычисляет случайные задержки с разбросом вокруг базового значения.
// Генератор защищён мьютексом: один Jitter обслуживает все воркеры запуска.
type Jitter struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitter создаёт калькулятор с заданным зерном. Одинаковое зерно даёт
// одинаковую последовательность задержек, что нужно тестам.
func NewJitter(seed int64) *Jitter {
	return &Jitter{rnd: rand.New(rand.NewSource(seed))}
}

// NewRandomJitter создаёт калькулятор с зерном от текущего времени.
func NewRandomJitter() *Jitter {
	return NewJitter(time.Now().UnixNano())
}

// Delay возвращает целое число секунд из отрезка [base-spread, base+spread],
// где spread = base*spreadPercent/100. Результат не бывает отрицательным.
func (j *Jitter) Delay(baseSeconds, spreadPercent int) int {
	if baseSeconds <= 0 {
		return 0
	}
	if spreadPercent < 0 {
		spreadPercent = 0
	}
	if spreadPercent > 100 {
		spreadPercent = 100
	}
	spread := baseSeconds * spreadPercent / 100
	low, high := baseSeconds-spread, baseSeconds+spread
	if spread == 0 {
		return baseSeconds
	}
	j.mu.Lock()
	v := low + j.rnd.Intn(high-low+1)
	j.mu.Unlock()
	if v < 0 {
		return 0
	}
	return v
}

// Duration переводит Delay в time.Duration с указанной единицей времени.
func (j *Jitter) Duration(baseSeconds, spreadPercent int, unit time.Duration) time.Duration {
	return time.Duration(j.Delay(baseSeconds, spreadPercent)) * unit
}

// Intn возвращает случайное число из [0, n) тем же генератором.
func (j *Jitter) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rnd.Intn(n)
}
