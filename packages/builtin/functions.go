package builtin

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context is what a function sees of the run: plan inputs and the request
// currently being resolved.
type Context struct {
	Inputs  map[string]any
	Request any
}

type Func func(ctx *Context, args []string) any

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["generic.generateUUID"] = plain(funcUUID)
	r.funcs["generic.generateID"] = plain(funcGenerateID)
	r.funcs["generic.curDate"] = plain(funcCurDate)
	r.funcs["generic.curDateISO"] = plain(funcCurDateISO)
	r.funcs["generic.inputValue"] = funcInputValue

	r.funcs["now"] = plain(funcNow)
	r.funcs["timestamp"] = plain(funcTimestamp)
	r.funcs["timestampMs"] = plain(funcTimestampMs)
	r.funcs["uuid"] = plain(funcUUID)
	r.funcs["random"] = plain(funcRandom)
	r.funcs["randomString"] = plain(funcRandomString)
	r.funcs["base64"] = plain(funcBase64)
	r.funcs["base64Decode"] = plain(funcBase64Decode)
	r.funcs["md5"] = plain(funcMD5)
	r.funcs["sha256"] = plain(funcSHA256)
	r.funcs["urlEncode"] = plain(funcURLEncode)
	r.funcs["date"] = plain(funcDate)
}

func plain(fn func(args []string) any) Func {
	return func(_ *Context, args []string) any {
		return fn(args)
	}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Has reports whether a function is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

var funcCallPattern = regexp.MustCompile(`^([\w.]+)(?:\((.*)\))?$`)

// Call evaluates expr, either a bare dotted name ("generic.curDate") or a
// call with literal arguments ("random(1, 10)").
func (r *Registry) Call(expr string, ctx *Context) (any, bool) {
	matches := funcCallPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if matches == nil {
		return nil, false
	}

	r.mu.RLock()
	fn, ok := r.funcs[matches[1]]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var args []string
	if matches[2] != "" {
		args = parseArgs(matches[2])
	}
	if ctx == nil {
		ctx = &Context{}
	}

	return fn(ctx, args), true
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inQuote && (ch == '"' || ch == '\'') {
			inQuote = true
			quoteChar = ch
		} else if inQuote && ch == quoteChar {
			inQuote = false
			quoteChar = 0
		} else if !inQuote && ch == ',' {
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		} else {
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

func funcInputValue(ctx *Context, args []string) any {
	if len(args) < 1 || ctx.Inputs == nil {
		return ""
	}
	v, ok := ctx.Inputs[args[0]]
	if !ok {
		return ""
	}
	return v
}

func funcGenerateID(_ []string) any {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func funcCurDate(_ []string) any {
	return time.Now().UTC().Format(time.RFC1123)
}

func funcCurDateISO(_ []string) any {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func funcNow(_ []string) any {
	return time.Now().UTC().Format(time.RFC3339)
}

func funcTimestamp(_ []string) any {
	return time.Now().Unix()
}

func funcTimestampMs(_ []string) any {
	return time.Now().UnixMilli()
}

func funcUUID(_ []string) any {
	return uuid.New().String()
}

func funcRandom(args []string) any {
	min, max := 0, 100
	if len(args) >= 2 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			min = v
		}
		if v, err := strconv.Atoi(args[1]); err == nil {
			max = v
		}
	}
	if max < min {
		min, max = max, min
	}
	return rand.Intn(max-min+1) + min
}

func funcRandomString(args []string) any {
	length := 16
	if len(args) >= 1 {
		if v, err := strconv.Atoi(args[0]); err == nil && v >= 0 {
			length = v
		}
	}
	return randomString(length, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
}

func funcBase64(args []string) any {
	if len(args) < 1 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0]))
}

func funcBase64Decode(args []string) any {
	if len(args) < 1 {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(args[0])
	if err != nil {
		return ""
	}
	return string(decoded)
}

func funcMD5(args []string) any {
	if len(args) < 1 {
		return ""
	}
	hash := md5.Sum([]byte(args[0]))
	return hex.EncodeToString(hash[:])
}

func funcSHA256(args []string) any {
	if len(args) < 1 {
		return ""
	}
	hash := sha256.Sum256([]byte(args[0]))
	return hex.EncodeToString(hash[:])
}

func funcURLEncode(args []string) any {
	if len(args) < 1 {
		return ""
	}
	return url.QueryEscape(args[0])
}

func funcDate(args []string) any {
	format := "2006-01-02"
	if len(args) >= 1 {
		format = args[0]
	}
	return time.Now().UTC().Format(format)
}

func randomString(length int, charset string) string {
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// String formats a function result for substitution into a template.
func String(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
