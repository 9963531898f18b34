//go:build mage
// +build mage

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName  = "festcache"
	reportsDir  = "./reports"
	distDir     = "./dist"
	redisImage  = "redis:7-alpine"
	redisDocker = "festcache-redis-dev"
)

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("festcache 构建系统")
	fmt.Println("==================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build            - 构建 festcache 二进制文件")
	fmt.Println("  mage test             - 运行单元测试和集成测试")
	fmt.Println("  mage testUnit         - 运行单元测试（带 race 检测）")
	fmt.Println("  mage testIntegration  - 运行需要 Redis 的集成测试")
	fmt.Println("  mage benchmark        - 运行缓存基准测试")
	fmt.Println("  mage redis:up         - 启动本地 Redis 容器")
	fmt.Println("  mage redis:down       - 停止本地 Redis 容器")
	fmt.Println("  mage coverage         - 生成测试覆盖率报告")
	fmt.Println("  mage lint             - 运行代码检查")
	fmt.Println("  mage clean            - 清理构建产物")
}

// Build 构建 festcache 二进制文件
func Build() error {
	mg.Deps(Clean)

	output := filepath.Join(distDir, binaryName)
	if runtime.GOOS == "windows" {
		output += ".exe"
	}

	fmt.Printf("📦 构建 %s...\n", binaryName)
	env := map[string]string{"CGO_ENABLED": "0"}
	if err := sh.RunWith(env, "go", "build", "-o", output, "./cmd/festcache"); err != nil {
		return fmt.Errorf("构建 %s 失败: %v", binaryName, err)
	}

	if info, err := os.Stat(output); err == nil {
		fmt.Printf("   ✅ %s: %d MB\n", binaryName, info.Size()/1024/1024)
	}
	return nil
}

// Test 运行所有测试
func Test() error {
	mg.SerialDeps(TestUnit, TestIntegration)
	return nil
}

// TestUnit 运行单元测试
func TestUnit() error {
	fmt.Println("🧪 运行单元测试...")
	if err := sh.RunV("go", "test", "-race", "-timeout=5m", "./..."); err != nil {
		return fmt.Errorf("单元测试失败: %v", err)
	}
	fmt.Println("✅ 单元测试通过!")
	return nil
}

// TestIntegration 运行集成测试
func TestIntegration() error {
	fmt.Println("🔗 运行集成测试...")

	if !isRedisRunning() {
		fmt.Println("⚠️  Redis 未运行，Redis 集成测试会被跳过 (mage redis:up)")
	}

	if err := sh.RunV("go", "test", "-tags=integration", "-timeout=10m", "./pkg/..."); err != nil {
		return fmt.Errorf("集成测试失败: %v", err)
	}
	fmt.Println("✅ 集成测试通过!")
	return nil
}

// Benchmark 运行缓存基准测试
func Benchmark() error {
	fmt.Println("📊 运行性能基准测试...")

	out, err := sh.Output("go", "test", "./pkg/cache", "-bench=.", "-benchmem", "-run=^$", "-timeout=15m")
	if err != nil {
		return fmt.Errorf("基准测试失败: %v", err)
	}

	report := filepath.Join(reportsDir, "benchmark.txt")
	if err := os.WriteFile(report, []byte(out), 0644); err != nil {
		return fmt.Errorf("写入基准测试报告失败: %v", err)
	}
	fmt.Println(out)
	fmt.Printf("✅ 基准测试完成! 报告保存到 %s\n", report)
	return nil
}

type Redis mg.Namespace

// Up 启动本地 Redis 容器
func (Redis) Up() error {
	fmt.Println("🐳 启动 Redis...")
	return sh.RunV("docker", "run", "-d", "--rm", "--name", redisDocker, "-p", "6379:6379", redisImage)
}

// Down 停止本地 Redis 容器
func (Redis) Down() error {
	fmt.Println("🛑 停止 Redis...")
	return sh.RunV("docker", "stop", redisDocker)
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")
	if err := sh.Rm(distDir); err != nil {
		return err
	}
	return os.MkdirAll(distDir, 0755)
}

// Lint 运行代码检查
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("go vet 失败: %v", err)
	}

	if _, err := exec.LookPath("golangci-lint"); err != nil {
		fmt.Println("⚠️  未安装 golangci-lint，跳过")
		return nil
	}
	return sh.RunV("golangci-lint", "run", "./...")
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📈 生成测试覆盖率报告...")

	profile := filepath.Join(reportsDir, "coverage.out")
	if err := sh.RunV("go", "test", "-coverprofile="+profile, "./pkg/..."); err != nil {
		return fmt.Errorf("生成覆盖率数据失败: %v", err)
	}
	if err := sh.Run("go", "tool", "cover", "-html="+profile, "-o", filepath.Join(reportsDir, "coverage.html")); err != nil {
		return fmt.Errorf("生成 HTML 报告失败: %v", err)
	}
	return sh.RunV("go", "tool", "cover", "-func="+profile)
}

// 辅助函数
func isRedisRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 在容器内执行命令，避免本地 redis-cli 依赖
	cmd := exec.CommandContext(ctx, "docker", "exec", redisDocker, "redis-cli", "ping")
	return cmd.Run() == nil
}

func init() {
	os.MkdirAll(distDir, 0755)
	os.MkdirAll(reportsDir, 0755)
}
