package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/chatdesk/backend/internal/config"
	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/completion"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/internal/service/extract"
	"github.com/zhouzirui/chatdesk/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: asr, chat 或 extract")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	filePath := flag.String("file", "", "extract 输入文件路径")
	text := flag.String("text", "", "chat 输入文本")
	backendID := flag.String("backend", "", "chat 使用的后端 ID，默认使用 CHAT_BACKEND")
	format := flag.String("format", "", "ASR 输入音频格式")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, cfg, *audioPath, *format, *language)
	case "chat":
		runChat(ctx, cfg, *backendID, *text)
	case "extract":
		runExtract(*filePath)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=asr、-mode=chat 或 -mode=extract 指定测试模式")
	}
}

func runASR(ctx context.Context, cfg *config.Config, audioPath, format, language string) {
	if !cfg.Speech.Enabled {
		log.Fatal("语音服务未启用，请先在环境变量中配置 SPEECH_* 凭证")
	}
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		log.Fatalf("打开音频文件失败: %v", err)
	}
	defer file.Close()

	format = speech.InferFormat(format, audioPath)
	if language == "" {
		language = cfg.Speech.Language
	}

	svc := speech.NewService(cfg.Speech.ServiceConfig())
	log.Printf("开始进行 ASR 测试: provider=%s format=%s language=%s", svc.Provider(), format, language)

	start := time.Now()
	result := svc.Transcribe(ctx, chat.AudioInput{
		Reader:   file,
		Filename: filepath.Base(audioPath),
		Format:   format,
		Language: language,
	})
	if speech.IsTranscriptionFailure(result) {
		log.Fatalf("ASR 调用失败: %s", result)
	}

	log.Printf("ASR 识别成功: text=%q elapsed=%s", result, time.Since(start))
}

func runChat(ctx context.Context, cfg *config.Config, backendID, text string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("chat 模式需要通过 -text 提供输入文本")
	}
	if backendID == "" {
		backendID = cfg.Completion.DefaultBackend
	}

	profiles, err := cfg.Completion.BackendProfiles()
	if err != nil {
		log.Fatalf("加载后端配置失败: %v", err)
	}
	store := backend.NewMemoryStore(profiles, cfg.Completion.DefaultBackend)
	registry, err := completion.NewRegistry(store, &http.Client{Timeout: cfg.Completion.HTTPTimeout})
	if err != nil {
		log.Fatalf("创建后端失败: %v", err)
	}
	be, err := registry.Get(backendID)
	if err != nil {
		log.Fatalf("%v", err)
	}

	systemPrompt := cfg.Completion.SystemPrompt
	if p, ok := store.FindByID(backendID); ok && p.SystemPrompt != "" {
		systemPrompt = p.SystemPrompt
	}

	start := time.Now()
	reply, err := be.Complete(ctx, systemPrompt, []chat.Message{chat.UserMessage(text)})
	if err != nil {
		log.Fatalf("调用失败: %s", conversation.FormatBackendError(be.Name(), err))
	}

	log.Printf("调用成功: backend=%s elapsed=%s", backendID, time.Since(start))
	fmt.Println(reply)
}

func runExtract(filePath string) {
	if filePath == "" {
		log.Fatal("extract 模式需要通过 -file 指定文件路径")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatalf("读取文件失败: %v", err)
	}

	res := extract.Extract(chat.FileInput{
		Name: filepath.Base(filePath),
		Data: data,
	})
	if !res.Applicable {
		log.Printf("文件类型 %s 不作为文本附加", extract.MediaType("", data))
	}
	if res.Image != nil {
		log.Printf("图片: type=%s %dx%d size=%d text=%v", res.Image.ContentType, res.Image.Width, res.Image.Height, res.Image.Size, res.Image.Text)
	}
	if res.Text != "" {
		fmt.Println(res.Text)
	}
}
