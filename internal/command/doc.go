// Package command 定义自由文本指令的结构化契约与分发逻辑。
// 解析器是外部协作者，规则式或模型式实现都可以替换，
// 核心只依赖 intent/params 的形状。
package command
