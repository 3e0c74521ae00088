package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/helper"
	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
)

// Parser переводит свободный текст алерта в models.Signal.
// Без состояния и побочных эффектов, кроме логов.
type Parser struct {
	knownSymbol *regexp.Regexp
	pairSymbol  *regexp.Regexp
	side        *regexp.Regexp
	entry       *regexp.Regexp
	entryInline *regexp.Regexp
	entryAfter  *regexp.Regexp
	stop        *regexp.Regexp
	takeProfit  *regexp.Regexp
	moveSL      *regexp.Regexp
	bareBE      *regexp.Regexp
	closeCmd    *regexp.Regexp
}

// Целую цену без точки считаем ценой только начиная с этого значения,
// иначе это почти наверняка номер цели ("TP 2").
const bareIntFloor = 100

func New() *Parser {
	return &Parser{
		// Сначала известные тикеры, потом общая форма пары: иначе любое
		// длинное слово в тексте ("SIGNAL") перехватит место символа.
		knownSymbol: regexp.MustCompile(`(GOLD|XAUUSD|BTCUSDT|ETHUSDT|BCHUSDT|XRPUSDT|SOLUSDT|DOGEUSDT)`),
		pairSymbol:  regexp.MustCompile(`([A-Z]{3,}/?[A-Z]{3,})`),
		side:        regexp.MustCompile(`(BUY|SELL|LONG|SHORT)`),
		entry:       regexp.MustCompile(`(?:ENTRY|PRICE|ENTER\s*(?:BELOW|AT|AROUND)?|AT|@)\s*:?\s*(\d+\.?\d*)`),
		entryInline: regexp.MustCompile(`(?:BUY|SELL|LONG|SHORT)\s+(\d+\.?\d*)`),
		entryAfter:  regexp.MustCompile(`(?:BUY|SELL|LONG|SHORT)\s+[A-Z0-9/]+\s+(\d+\.?\d*)`),
		stop:        regexp.MustCompile(`(?:SL|STOPLOSS|STOP\s*LOSS)\s*:?\s*(\d+\.?\d*)`),
		takeProfit:  regexp.MustCompile(`(?:TP|TARGET)\s*\d*\s*:?\s*(\d+\.?\d*)`),
		moveSL:      regexp.MustCompile(`(?:MOVE\s+SL\s+TO|SL\s+TO)\s*:?\s*(\d+\.?\d*)?`),
		bareBE:      regexp.MustCompile(`(?:^|\s)BE\b`),
		closeCmd:    regexp.MustCompile(`(?:CLOSE|EXIT)\s+(?:HALF|PARTIAL|ALL|NOW)`),
	}
}

// Parse возвращает nil, если в тексте нет ничего похожего на сигнал.
// Частично заполненный сигнал — валидный результат: решение "торгуем или нет"
// принимает движок, не парсер.
func (p *Parser) Parse(text string, meta models.ChannelMeta) *models.Signal {
	up := strings.ToUpper(text)

	symbol := p.extractSymbol(up)
	if symbol == "" {
		return nil
	}

	sig := &models.Signal{
		Symbol:    symbol,
		Action:    models.ActionNone,
		Venue:     meta.Venue,
		ChannelID: meta.ID,
		Channel:   meta.Name,
		CreatedAt: time.Now(),
	}

	if m := p.side.FindStringSubmatch(up); m != nil {
		if m[1] == "BUY" || m[1] == "LONG" {
			sig.Side = models.SideBuy
		} else {
			sig.Side = models.SideSell
		}
	}

	sig.Entry = p.extractEntry(up)
	sig.StopLoss = firstFloat(p.stop, up)
	sig.TakeProfits = p.extractTPs(up)
	p.extractAction(up, sig)

	if sig.Empty() {
		return nil
	}

	if sig.IsUpdate() {
		logger.Info("parsed update %s %s from %s", sig.Action, sig.Symbol, meta.Name)
	} else {
		logger.Info("parsed signal %s %s SL=%v TPs=%d from %s",
			sig.Side, sig.Symbol, sig.StopLoss, len(sig.TakeProfits), meta.Name)
	}
	return sig
}

func (p *Parser) extractSymbol(up string) string {
	if m := p.knownSymbol.FindStringSubmatch(up); m != nil {
		return helper.NormSymbol(m[1])
	}
	if m := p.pairSymbol.FindStringSubmatch(up); m != nil {
		return helper.NormSymbol(m[1])
	}
	return ""
}

// extractEntry: сперва метка (ENTRY/PRICE/@...), дальше число сразу после
// стороны ("BUY 5055.8"), дальше число после стороны и тикера ("BUY XAUUSD 5055.8").
func (p *Parser) extractEntry(up string) float64 {
	if v := firstFloat(p.entry, up); v > 0 {
		return v
	}
	if v := firstFloat(p.entryInline, up); v > 0 {
		return v
	}
	return firstFloat(p.entryAfter, up)
}

func (p *Parser) extractTPs(up string) []float64 {
	var out []float64
	seen := make(map[string]struct{})
	for _, m := range p.takeProfit.FindAllStringSubmatch(up, -1) {
		raw := m[1]
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			continue
		}
		// Номер цели вместо цены.
		if !strings.Contains(raw, ".") && v < bareIntFloor {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (p *Parser) extractAction(up string, sig *models.Signal) {
	if p.closeCmd.MatchString(up) {
		sig.Action = models.ActionClose
		return
	}
	if m := p.moveSL.FindStringSubmatch(up); m != nil {
		sig.Action = models.ActionMoveSL
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			sig.ActionPrice = v
		} else {
			// "MOVE SL TO BE" и прочее без числа.
			sig.ToBreakeven = true
		}
		return
	}
	// Голое "BE" принимаем только в сообщении без стороны: в обычном тексте
	// ("WILL BE...") это просто слово, а не команда.
	if sig.Side == models.SideNone && p.bareBE.MatchString(up) {
		sig.Action = models.ActionMoveSL
		sig.ToBreakeven = true
	}
}

func firstFloat(re *regexp.Regexp, s string) float64 {
	m := re.FindStringSubmatch(s)
	if m == nil || m[1] == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}
