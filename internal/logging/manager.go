package logging

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// LoggerManager держит по одному логгеру на компонент. Уровни новых
// логгеров берутся из VOXEL_LOG_LEVEL (консоль) и из SetLogLevel, если
// он был вызван раньше, чем логгер понадобился.
type LoggerManager struct {
	mu        sync.RWMutex
	loggers   map[string]*Logger
	overrides map[string][2]LogLevel
	console   LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

func newLoggerManager() *LoggerManager {
	return &LoggerManager{
		loggers:   make(map[string]*Logger),
		overrides: make(map[string][2]LogLevel),
		console:   ParseLevel(os.Getenv("VOXEL_LOG_LEVEL")),
	}
}

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = newLoggerManager()
	})
	return globalManager
}

// GetLogger возвращает логгер для компонента, создавая его при необходимости
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	if logger, exists := lm.loggers[component]; exists {
		lm.mu.RUnlock()
		return logger, nil
	}
	lm.mu.RUnlock()

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if logger, exists := lm.loggers[component]; exists {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать логгер %s: %w", component, err)
	}
	lm.applyLevels(component, logger)
	lm.loggers[component] = logger
	return logger, nil
}

// applyLevels вызывается под lm.mu
func (lm *LoggerManager) applyLevels(component string, l *Logger) {
	if lv, ok := lm.overrides[component]; ok {
		l.SetLevels(lv[0], lv[1])
		return
	}
	l.SetLevels(lm.console, DEBUG)
}

// MustGetLogger при ошибке файла отдаёт логгер только в stdout
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err == nil {
		return logger
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if existing, ok := lm.loggers[component]; ok {
		return existing
	}
	logger = NewConsoleLogger(component)
	lm.applyLevels(component, logger)
	lm.loggers[component] = logger
	return logger
}

// CloseAll закрывает все логгеры
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("не удалось закрыть логгер %s: %w", component, err)
		}
	}
	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// ListComponents имена компонентов по алфавиту
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

// SetLogLevel задаёт уровни компонента, в том числе ещё не созданного
func (lm *LoggerManager) SetLogLevel(component string, consoleLevel, fileLevel LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.overrides[component] = [2]LogLevel{consoleLevel, fileLevel}
	if logger, ok := lm.loggers[component]; ok {
		logger.SetLevels(consoleLevel, fileLevel)
	}
}

func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetNetworkLogger() *Logger { return GetComponentLogger("network") }
func GetServerLogger() *Logger  { return GetComponentLogger("server") }
func GetGameLogger() *Logger    { return GetComponentLogger("game") }
func GetClientLogger() *Logger  { return GetComponentLogger("client") }
func GetWorldLogger() *Logger   { return GetComponentLogger("world") }
func GetStorageLogger() *Logger { return GetComponentLogger("storage") }
