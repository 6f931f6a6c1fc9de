// Package metrics собирает метрики Prometheus.
// Все методы безопасны для nil: без METRICS_ENABLED сервисы получают nil.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "habit_tracker"

// Metrics — набор метрик сервиса со своим реестром.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	completions     prometheus.Counter
	xpAwarded       prometheus.Counter
	levelUps        prometheus.Counter
	unlocked        *prometheus.CounterVec
	predicateErrors *prometheus.CounterVec
	remindersSent   *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
}

// New создаёт реестр с метриками Go-рантайма, процесса и приложения.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP-запросы по маршруту и статусу.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Время обработки HTTP-запросов.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "habit_completions_total",
			Help:      "Новые выполнения привычек, за которые начислен опыт.",
		}),
		xpAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awarded_total",
			Help:      "Всего начислено опыта.",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Повышения уровня.",
		}),
		unlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Открытые достижения.",
		}, []string{"achievement"}),
		predicateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievement_predicate_errors_total",
			Help:      "Сбои условий достижений.",
		}, []string{"achievement"}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Напоминания о сериях по результату отправки.",
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Запуски фоновых задач.",
		}, []string{"job", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.completions, m.xpAwarded, m.levelUps,
		m.unlocked, m.predicateErrors,
		m.remindersSent, m.jobRuns,
	)
	return m
}

// Registry возвращает реестр (для тестов и дополнительных коллекторов).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP записывает один обработанный запрос.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Progress записывает итог игровой операции.
func (m *Metrics) Progress(completions int, xp int64, leveledUp bool, unlocked []string) {
	if m == nil {
		return
	}
	m.completions.Add(float64(completions))
	m.xpAwarded.Add(float64(xp))
	if leveledUp {
		m.levelUps.Inc()
	}
	for _, id := range unlocked {
		m.unlocked.WithLabelValues(id).Inc()
	}
}

// PredicateError записывает сбой условия достижения.
func (m *Metrics) PredicateError(achievementID string) {
	if m == nil {
		return
	}
	m.predicateErrors.WithLabelValues(achievementID).Inc()
}

// Reminder записывает результат отправки напоминания.
func (m *Metrics) Reminder(ok bool) {
	if m == nil {
		return
	}
	m.remindersSent.WithLabelValues(result(ok)).Inc()
}

// JobRun записывает запуск фоновой задачи.
func (m *Metrics) JobRun(job string, ok bool) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
