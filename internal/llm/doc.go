// Package llm 定义了访问外部文本生成服务的统一契约。
//
// 派发核心只依赖本包的接口：Generate 用于受约束的单次生成（意图分类、
// 结构化抽取、回复渲染），ChatClient 额外提供带记忆的自由对话。具体的
// 提供方实现位于子包中。
package llm
